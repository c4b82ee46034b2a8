package pipeline

import "github.com/smnsjas/go-psrpcore/clixml"

// MergePreviousResults controls whether a command's error/warning/etc
// stream is merged into another target stream, [MS-PSRP] §2.2.3.9's
// MergeUnclaimedPreviousCommandResults and per-command merge settings.
type MergePreviousResults int32

const (
	MergeNone MergePreviousResults = iota
	MergeToOutput
	MergeToNull
)

// Parameter is one named-or-positional argument attached to a Command.
type Parameter struct {
	Name     string // empty for a positional argument added via AddArgument
	Value    clixml.Value
	HasValue bool
}

// Command is one command or script block within a pipeline statement.
type Command struct {
	Name       string
	IsScript   bool
	Parameters []Parameter

	MergeError       MergePreviousResults
	MergeWarning     MergePreviousResults
	MergeVerbose     MergePreviousResults
	MergeDebug       MergePreviousResults
	MergeInformation MergePreviousResults
}

// Statement is an ordered list of commands connected by the pipe operator.
type Statement struct {
	Commands []*Command
}

// Builder accumulates statements/commands for a pipeline before it is
// invoked. A zero-value Builder is ready to use.
type Builder struct {
	statements []*Statement
	noInput    bool
}

// AddScript starts a new statement whose single command is a raw script
// block rather than a named command.
func (b *Builder) AddScript(text string) *Builder {
	b.appendCommand(&Command{Name: text, IsScript: true})
	return b
}

// AddCommand starts a new statement with a named command (e.g. a cmdlet).
func (b *Builder) AddCommand(name string) *Builder {
	b.appendCommand(&Command{Name: name})
	return b
}

// AddStatement explicitly starts a new, empty statement; the next
// AddCommand/AddScript populates it. Most callers don't need this: each
// AddCommand/AddScript call already starts its own statement unless the
// last statement is still empty.
func (b *Builder) AddStatement() *Builder {
	b.statements = append(b.statements, &Statement{})
	return b
}

func (b *Builder) appendCommand(c *Command) {
	if n := len(b.statements); n > 0 && len(b.statements[n-1].Commands) == 0 {
		b.statements[n-1].Commands = append(b.statements[n-1].Commands, c)
		return
	}
	b.statements = append(b.statements, &Statement{Commands: []*Command{c}})
}

func (b *Builder) lastCommand() *Command {
	if len(b.statements) == 0 {
		return nil
	}
	st := b.statements[len(b.statements)-1]
	if len(st.Commands) == 0 {
		return nil
	}
	return st.Commands[len(st.Commands)-1]
}

// AddParameter attaches a named parameter to the most recently added
// command.
func (b *Builder) AddParameter(name string, value clixml.Value) *Builder {
	if c := b.lastCommand(); c != nil {
		c.Parameters = append(c.Parameters, Parameter{Name: name, Value: value, HasValue: true})
	}
	return b
}

// AddSwitchParameter attaches a named switch parameter (no value) to the
// most recently added command.
func (b *Builder) AddSwitchParameter(name string) *Builder {
	if c := b.lastCommand(); c != nil {
		c.Parameters = append(c.Parameters, Parameter{Name: name})
	}
	return b
}

// AddArgument attaches a positional argument to the most recently added
// command.
func (b *Builder) AddArgument(value clixml.Value) *Builder {
	if c := b.lastCommand(); c != nil {
		c.Parameters = append(c.Parameters, Parameter{Value: value, HasValue: true})
	}
	return b
}

// SetNoInput controls whether the pipeline expects PIPELINE_INPUT from the
// client; true means no input stream is opened.
func (b *Builder) SetNoInput(noInput bool) *Builder {
	b.noInput = noInput
	return b
}

// Pipe appends name as a new command in the same statement as the most
// recently added command, connecting them with the pipe operator.
func (b *Builder) Pipe(name string) *Builder {
	if len(b.statements) == 0 {
		return b.AddCommand(name)
	}
	st := b.statements[len(b.statements)-1]
	st.Commands = append(st.Commands, &Command{Name: name})
	return b
}

// Statements returns the accumulated statements in build order.
func (b *Builder) Statements() []*Statement { return b.statements }

package pipeline

import (
	"github.com/smnsjas/go-psrpcore/clixml"
	"github.com/smnsjas/go-psrpcore/serialization"
)

// hostInfoObject mirrors the null-host descriptor sent with
// INIT_RUNSPACEPOOL: this module implements no interactive host UI, only
// the RUNSPACEPOOL_HOST_CALL/PIPELINE_HOST_CALL wire contract.
func hostInfoObject() clixml.Value {
	obj := clixml.NewPSObject()
	obj.Adapted.Set("_isHostNull", clixml.Bool(true))
	obj.Adapted.Set("_isHostRawUINull", clixml.Bool(true))
	obj.Adapted.Set("_useRunspaceHost", clixml.Bool(false))
	obj.Adapted.Set("_isHostNullRef", clixml.Bool(true))
	return obj
}

func parameterObject(prm Parameter) clixml.Value {
	obj := clixml.NewPSObject()
	if prm.Name != "" {
		obj.Adapted.Set("N", clixml.String(prm.Name))
	} else {
		obj.Adapted.Set("N", clixml.Null{})
	}
	if prm.HasValue {
		obj.Adapted.Set("V", prm.Value)
	} else {
		obj.Adapted.Set("V", clixml.Bool(true))
	}
	return obj
}

func commandObject(cmd *Command, isLast bool) clixml.Value {
	obj := clixml.NewPSObject()
	obj.Adapted.Set("Cmd", clixml.String(cmd.Name))
	obj.Adapted.Set("IsScript", clixml.Bool(cmd.IsScript))
	obj.Adapted.Set("UseLocalScope", clixml.Null{})

	argList := clixml.NewPSObject()
	argList.Collection = clixml.CollectionList
	for _, prm := range cmd.Parameters {
		argList.Elements = append(argList.Elements, parameterObject(prm))
	}
	obj.Adapted.Set("Args", argList)

	obj.Adapted.Set("MergeMyResult", clixml.Bool(!isLast))
	obj.Adapted.Set("MergeToResult", clixml.Bool(!isLast))
	obj.Adapted.Set("MergePreviousResults", clixml.Bool(!isLast))
	obj.Adapted.Set("MergeError", clixml.Int32(cmd.MergeError))
	obj.Adapted.Set("MergeWarning", clixml.Int32(cmd.MergeWarning))
	obj.Adapted.Set("MergeVerbose", clixml.Int32(cmd.MergeVerbose))
	obj.Adapted.Set("MergeDebug", clixml.Int32(cmd.MergeDebug))
	obj.Adapted.Set("MergeInformation", clixml.Int32(cmd.MergeInformation))
	return obj
}

// buildCreatePipelinePayload serializes the accumulated Builder state into
// the CREATE_PIPELINE CLIXML payload, [MS-PSRP] §2.2.2.14.
func (p *Pipeline) buildCreatePipelinePayload() ([]byte, error) {
	cmdsList := clixml.NewPSObject()
	cmdsList.Collection = clixml.CollectionList
	for _, st := range p.Builder.statements {
		for i, cmd := range st.Commands {
			cmdsList.Elements = append(cmdsList.Elements, commandObject(cmd, i == len(st.Commands)-1))
		}
	}

	p.mu.Lock()
	nested := p.isNested
	p.mu.Unlock()

	psObj := clixml.NewPSObject()
	psObj.Adapted.Set("IsNested", clixml.Bool(nested))
	psObj.Adapted.Set("Cmds", cmdsList)
	psObj.Adapted.Set("History", clixml.Null{})
	psObj.Adapted.Set("RedirectShellErrorOutputPipe", clixml.Bool(true))

	obj := clixml.NewPSObject()
	obj.Adapted.Set("NoInput", clixml.Bool(p.Builder.noInput))
	obj.Adapted.Set("AddToHistory", clixml.Bool(true))
	obj.Adapted.Set("IsNested", clixml.Bool(nested))
	obj.Adapted.Set("ApartmentState", clixml.Int32(2))
	obj.Adapted.Set("RemoteStreamOptions", clixml.Int32(0))
	obj.Adapted.Set("HostInfo", hostInfoObject())
	obj.Adapted.Set("PowerShell", psObj)
	obj.Adapted.Set("ExtraCmds", clixml.Null{})

	ser := serialization.NewSerializer()
	return ser.Serialize(obj)
}

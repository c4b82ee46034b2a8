package pipeline

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-psrpcore/clixml"
	"github.com/smnsjas/go-psrpcore/messages"
	"github.com/smnsjas/go-psrpcore/runspace"
	"github.com/smnsjas/go-psrpcore/serialization"
)

func newTestPool() *runspace.Pool {
	return runspace.New(&bytes.Buffer{}, uuid.New())
}

func TestBuilderChainsParametersOntoLastCommand(t *testing.T) {
	var b Builder
	b.AddCommand("Get-Process").AddParameter("Name", clixml.String("pwsh")).AddSwitchParameter("IncludeUserName")

	stmts := b.Statements()
	require.Len(t, stmts, 1)
	require.Len(t, stmts[0].Commands, 1)
	cmd := stmts[0].Commands[0]
	assert.Equal(t, "Get-Process", cmd.Name)
	require.Len(t, cmd.Parameters, 2)
	assert.Equal(t, "Name", cmd.Parameters[0].Name)
	assert.True(t, cmd.Parameters[0].HasValue)
	assert.Equal(t, "IncludeUserName", cmd.Parameters[1].Name)
	assert.False(t, cmd.Parameters[1].HasValue)
}

func TestPipeAppendsToSameStatement(t *testing.T) {
	var b Builder
	b.AddCommand("Get-Process").Pipe("Where-Object").Pipe("Select-Object")

	stmts := b.Statements()
	require.Len(t, stmts, 1)
	require.Len(t, stmts[0].Commands, 3)
	assert.Equal(t, MergeNone, stmts[0].Commands[0].MergeError) // sanity: zero value is MergeNone
}

func TestAddScriptStartsNewStatement(t *testing.T) {
	var b Builder
	b.AddCommand("Get-Process")
	b.AddScript("Get-Service")

	stmts := b.Statements()
	require.Len(t, stmts, 2)
	assert.True(t, stmts[1].Commands[0].IsScript)
}

func TestBuildCreatePipelinePayloadRoundTrips(t *testing.T) {
	pool := newTestPool()
	p := New(pool, "")
	p.AddCommand("Get-Process").AddParameter("Name", clixml.String("pwsh"))

	data, err := p.buildCreatePipelinePayload()
	require.NoError(t, err)

	deser := serialization.NewDeserializer()
	v, err := deser.DeserializeOne(data)
	require.NoError(t, err)
	obj, ok := v.(*clixml.PSObject)
	require.True(t, ok)

	ps, ok := obj.Adapted.Get("PowerShell")
	require.True(t, ok)
	psObj := ps.(*clixml.PSObject)
	cmds, ok := psObj.Adapted.Get("Cmds")
	require.True(t, ok)
	cmdsObj := cmds.(*clixml.PSObject)
	require.Len(t, cmdsObj.Elements, 1)
	cmdObj := cmdsObj.Elements[0].(*clixml.PSObject)
	name, ok := cmdObj.Adapted.Get("Cmd")
	require.True(t, ok)
	assert.Equal(t, clixml.String("Get-Process"), name)
}

func TestInvokeTransitionsToRunningAndSendsMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	pool := runspace.New(buf, uuid.New())
	p := New(pool, "Get-Process")

	require.NoError(t, p.Invoke(context.Background()))
	assert.Equal(t, StateRunning, p.State())
	assert.Greater(t, buf.Len(), 0)

	err := p.Invoke(context.Background())
	assert.Error(t, err, "invoking twice should fail")
}

func TestSkipInvokeSendAvoidsDoubleWrite(t *testing.T) {
	buf := &bytes.Buffer{}
	pool := runspace.New(buf, uuid.New())
	p := New(pool, "Get-Process")
	p.SkipInvokeSend()

	require.NoError(t, p.Invoke(context.Background()))
	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, StateRunning, p.State())
}

func TestHandleMessageRoutesOutputAndCompletes(t *testing.T) {
	pool := newTestPool()
	p := New(pool, "Get-Process")
	require.NoError(t, p.Invoke(context.Background()))

	ser := serialization.NewSerializer()
	outData, err := ser.Serialize("hello")
	require.NoError(t, err)

	require.NoError(t, p.HandleMessage(&messages.Message{Type: messages.MessageTypePipelineOutput, Data: outData}))

	select {
	case m := <-p.Output():
		v, err := serialization.NewDeserializer().DeserializeOne(m.Data)
		require.NoError(t, err)
		assert.Equal(t, clixml.String("hello"), v)
	case <-time.After(time.Second):
		t.Fatal("expected output message")
	}

	stateObj := clixml.NewPSObject()
	stateObj.Adapted.Set("PipelineState", clixml.Int32(messages.PipelineStateCompleted))
	stateData, err := ser.Serialize(stateObj)
	require.NoError(t, err)
	require.NoError(t, p.HandleMessage(&messages.Message{Type: messages.MessageTypePipelineState, Data: stateData}))

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pipeline did not reach done")
	}
	assert.Equal(t, StateCompleted, p.State())
	assert.NoError(t, p.Wait())
}

func TestHandleMessageErrorRecordSetsHadErrors(t *testing.T) {
	pool := newTestPool()
	p := New(pool, "Get-Process")
	require.NoError(t, p.Invoke(context.Background()))

	ser := serialization.NewSerializer()
	data, err := ser.Serialize(clixml.NewPSObject())
	require.NoError(t, err)
	require.NoError(t, p.HandleMessage(&messages.Message{Type: messages.MessageTypeErrorRecord, Data: data}))

	<-p.Error()
	assert.True(t, p.HadErrors())
}

func TestFailClosesDoneWithError(t *testing.T) {
	pool := newTestPool()
	p := New(pool, "Get-Process")
	p.Fail(assert.AnError)

	select {
	case <-p.Done():
	default:
		t.Fatal("Fail should close Done immediately")
	}
	assert.ErrorIs(t, p.Wait(), assert.AnError)
	assert.Equal(t, StateFailed, p.State())
}

func TestCreateNestedPipelineSucceedsOnRunningLocalPipeline(t *testing.T) {
	buf := &bytes.Buffer{}
	pool := runspace.New(buf, uuid.New())
	parent := New(pool, "Get-Process")
	require.NoError(t, parent.Invoke(context.Background()))

	nested, err := parent.CreateNestedPipeline(context.Background(), "Get-Service")
	require.NoError(t, err)
	assert.True(t, nested.IsNested())
	assert.Equal(t, StateRunning, nested.State())
	assert.NotEqual(t, parent.ID(), nested.ID())

	data, err := nested.buildCreatePipelinePayload()
	require.NoError(t, err)
	deser := serialization.NewDeserializer()
	v, err := deser.DeserializeOne(data)
	require.NoError(t, err)
	obj := v.(*clixml.PSObject)
	isNested, ok := obj.Adapted.Get("IsNested")
	require.True(t, ok)
	assert.Equal(t, clixml.Bool(true), isNested)
}

func TestCreateNestedPipelineRejectsReconnectedPipeline(t *testing.T) {
	pool := newTestPool()
	p := New(pool, "Get-Process")
	require.NoError(t, p.Invoke(context.Background()))
	p.MarkReconnected()

	_, err := p.CreateNestedPipeline(context.Background(), "Get-Service")
	require.Error(t, err)
	var ioErr *InvalidOperationError
	require.ErrorAs(t, err, &ioErr)
	assert.Contains(t, ioErr.Error(), "connected to remotely")
}

func TestCreateNestedPipelineRejectsNonRunningParent(t *testing.T) {
	pool := newTestPool()
	p := New(pool, "Get-Process")

	_, err := p.CreateNestedPipeline(context.Background(), "Get-Service")
	require.Error(t, err)
	var ioErr *InvalidOperationError
	require.ErrorAs(t, err, &ioErr)
}

func TestTopLevelPipelinePayloadIsNotNested(t *testing.T) {
	pool := newTestPool()
	p := New(pool, "Get-Process")

	data, err := p.buildCreatePipelinePayload()
	require.NoError(t, err)
	deser := serialization.NewDeserializer()
	v, err := deser.DeserializeOne(data)
	require.NoError(t, err)
	obj := v.(*clixml.PSObject)
	isNested, ok := obj.Adapted.Get("IsNested")
	require.True(t, ok)
	assert.Equal(t, clixml.Bool(false), isNested)
}

func TestStopWithoutSignalWaitsForDone(t *testing.T) {
	pool := newTestPool()
	p := New(pool, "Get-Process")
	require.NoError(t, p.Invoke(context.Background()))

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.setState(StateStopped)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
	assert.Equal(t, StateStopped, p.State())
}

package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// #region task1-tests

func TestTask1_FocusBlurAccumulates(t *testing.T) {
	clk := newClock()
	c := NewTask1(WithClock(clk.Now))

	c.Focus("name")
	clk.Advance(1500 * time.Millisecond)
	c.Blur("name")
	c.Focus("name")
	clk.Advance(500 * time.Millisecond)
	c.Blur("name")
	c.Blur("name")

	d := c.Snapshot()
	require.Len(t, d.FieldInteractions, 1)
	assert.Equal(t, int64(2000), d.FieldInteractions[0].FocusTimeMs)
	assert.Equal(t, []string{"name"}, d.TaskSpecificMetrics.FieldSequence)
}

func TestTask1_FieldSequenceSkipsRepeats(t *testing.T) {
	c := NewTask1()
	c.Focus("name")
	c.Focus("name")
	c.Focus("zipCode")
	c.Focus("name")
	assert.Equal(t, []string{"name", "zipCode", "name"}, c.Snapshot().TaskSpecificMetrics.FieldSequence)
}

func TestTask1_ChangeCounters(t *testing.T) {
	c := NewTask1()
	c.Change("zipCode", "1")
	c.Change("zipCode", "12")
	c.Change("zipCode", "123")
	c.Change("shippingMethod", "standard")
	c.Change("shippingMethod", "standard")
	c.Change("shippingMethod", "express")
	c.KeyDown("zipCode", "Backspace")
	c.KeyDown("zipCode", "a")

	d := c.Snapshot()
	assert.Equal(t, 3, d.TaskSpecificMetrics.ZipCodeCorrections)
	assert.Equal(t, 1, d.TaskSpecificMetrics.ShippingMethodChanges)
	assert.Equal(t, 1, d.FieldInteractions[0].BackspaceCount)
	assert.Equal(t, 3, d.FieldInteractions[0].EditCount)
}

func TestTask1_MouseMovesSampled(t *testing.T) {
	clk := newClock()
	c := NewTask1(WithClock(clk.Now))

	c.RecordInput(snapshot.InputEvent{Type: "mouse_move", X: 1, Y: 1})
	clk.Advance(50 * time.Millisecond)
	c.RecordInput(snapshot.InputEvent{Type: "mouse_move", X: 2, Y: 2})
	clk.Advance(60 * time.Millisecond)
	c.RecordInput(snapshot.InputEvent{Type: "mouse_move", X: 3, Y: 3})
	c.RecordInput(snapshot.InputEvent{Type: "click", Target: "submit"})
	c.Paste("zipCode")

	d := c.Snapshot()
	require.Len(t, d.MouseData, 4)
	assert.Equal(t, 1.0, d.MouseData[0].X)
	assert.Equal(t, 3.0, d.MouseData[1].X)
	assert.Equal(t, "click", d.MouseData[2].Type)
	assert.Equal(t, "paste", d.MouseData[3].Type)
	assert.Equal(t, clk.Now(), d.MouseData[3].Timestamp)
}

func TestTask1_MarkEnd(t *testing.T) {
	clk := newClock()
	c := NewTask1(WithClock(clk.Now))
	clk.Advance(42 * time.Second)
	c.RecordError()
	c.RecordError()
	c.RecordHelp()
	c.MarkEnd(true)

	d := c.Snapshot()
	assert.Equal(t, int64(42000), d.SummaryMetrics.TotalTimeMs)
	assert.True(t, d.SummaryMetrics.Success)
	assert.Equal(t, 2, d.SummaryMetrics.ErrorCount)
	assert.Equal(t, 1, d.SummaryMetrics.HelpRequests)
	require.NotNil(t, d.Timestamps.End)
}

func TestTask1_PublishThrottling(t *testing.T) {
	clk := newClock()
	pub := &fakePublisher{}
	c := NewTask1(WithClock(clk.Now), WithPublisher(pub))

	c.Focus("a")
	c.Focus("b")
	c.Focus("c")
	assert.Equal(t, 1, pub.count())

	c.RecordError()
	assert.Equal(t, 2, pub.count())

	clk.Advance(PublishInterval)
	c.Focus("d")
	assert.Equal(t, 3, pub.count())
}

func TestTask1_RecoveredPanicBecomesInternalError(t *testing.T) {
	pub := &fakePublisher{}
	c := NewTask1(WithPublisher(pub))
	c.run("explode", func() publishMode { panic("bad index") })

	d := c.Snapshot()
	require.Len(t, d.InternalErrors, 1)
	assert.Contains(t, d.InternalErrors[0].Message, "explode failed: bad index")
	assert.Equal(t, 1, pub.count())
}

func TestTask1_Save(t *testing.T) {
	p := &fakePersister{}
	c := NewTask1(WithPersister(p))
	c.RecordHelp()
	require.NoError(t, c.Save(context.Background()))
	saved, ok := p.saved[Task1Key].(*snapshot.Task1Data)
	require.True(t, ok)
	assert.Equal(t, 1, saved.SummaryMetrics.HelpRequests)

	p.err = errDiskFull
	err := c.Save(context.Background())
	require.ErrorIs(t, err, errDiskFull)
	assert.Len(t, c.Snapshot().InternalErrors, 1)
}

// #endregion task1-tests

package vna

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govna/internal/scpi"
	"govna/internal/scpi/scpitest"
)

func TestMeasurementNumberResolvesByName(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["calculate1:parameter:catalog:extended?"] = `"CH1_S11_1,S11,MyTrace,S21"`
	fake.Responses["calculate1:parameter:mnumber?"] = "+2"
	sess := NewSession(fake)

	num, err := sess.MeasurementNumber(context.Background(), "MyTrace", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, num)
	assert.True(t, fake.Sent(`calculate1:parameter:select "MyTrace"`))
}

func TestMeasurementNumberUnknownName(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["calculate1:parameter:catalog:extended?"] = `"CH1_S11_1,S11"`
	sess := NewSession(fake)

	_, err := sess.MeasurementNumber(context.Background(), "Missing", 1)
	var notFound *scpi.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Missing", notFound.Name)
	// No selection may be attempted for an unknown name.
	assert.False(t, fake.Sent("parameter:select"))
}

func TestMeasurementNamesEmptyCatalog(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["calculate1:parameter:catalog:extended?"] = `"NO CATALOG"`
	sess := NewSession(fake)

	names, err := sess.MeasurementNames(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMeasurementCatalogOddTokens(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["calculate1:parameter:catalog:extended?"] = `"CH1_S11_1,S11,Orphan"`
	sess := NewSession(fake)

	_, err := sess.MeasurementNames(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "odd token count")
}

func TestMeasurementParams(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["calculate1:parameter:catalog:extended?"] = `"Gain,S21, Match , S11 "`
	sess := NewSession(fake)

	params, err := sess.MeasurementParams(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Gain": "S21", "Match": "S11"}, params)
}

func TestNextTraceSlotEmptyWindow(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["display:window1:catalog?"] = `"EMPTY"`
	sess := NewSession(fake)

	slot, err := sess.NextTraceSlot(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, slot)
}

func TestNextTraceSlotOccupiedWindow(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["display:window2:catalog?"] = `"1,2,3"`
	sess := NewSession(fake)

	slot, err := sess.NextTraceSlot(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 4, slot)
}

func TestEnsureWindowCreatesOnlyWhenAbsent(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["display:catalog?"] = `"1,2"`
	sess := NewSession(fake)

	require.NoError(t, sess.EnsureWindow(context.Background(), 2))
	assert.False(t, fake.Sent("display:window2:state"))

	require.NoError(t, sess.EnsureWindow(context.Background(), 5))
	assert.True(t, fake.Sent("display:window5:state on"))
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeSet(t *testing.T) {
	var s AttributeSet
	assert.True(t, s.Empty())

	s.Add(AttrTitle, AttrAlarm)
	assert.True(t, s.Has(AttrTitle))
	assert.True(t, s.Has(AttrAlarm))
	assert.False(t, s.Has(AttrNote))

	s.Remove(AttrTitle)
	assert.False(t, s.Has(AttrTitle))
	assert.Equal(t, []Attribute{AttrAlarm}, s.Attributes())
}

func TestAttributeByName(t *testing.T) {
	a, ok := AttributeByName("percent_complete")
	require.True(t, ok)
	assert.Equal(t, AttrPercentComplete, a)

	_, ok = AttributeByName("nonsense")
	assert.False(t, ok)

	// every attribute round-trips through its wire name
	for _, a := range AllAttributes() {
		got, ok := AttributeByName(a.String())
		require.True(t, ok, a.String())
		assert.Equal(t, a, got)
	}
}

func TestParticipantKinds(t *testing.T) {
	internal := Participant{UserID: 7}
	group := Participant{GroupID: 3}
	external := Participant{Email: "guest@example.org"}

	assert.False(t, internal.External())
	assert.False(t, internal.Group())
	assert.True(t, group.Group())
	assert.True(t, external.External())

	assert.Equal(t, "u:7", internal.Key())
	assert.Equal(t, "e:guest@example.org", external.Key())
	// mail keys are case-insensitive
	assert.Equal(t, external.Key(), Participant{Email: "GUEST@EXAMPLE.ORG"}.Key())
}

func TestWeekdays(t *testing.T) {
	var w Weekdays
	assert.True(t, w.Empty())

	w = 1<<uint(time.Monday) | 1<<uint(time.Friday)
	assert.True(t, w.Has(time.Monday))
	assert.True(t, w.Has(time.Friday))
	assert.False(t, w.Has(time.Sunday))
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKey(t *testing.T) {
	assert.Equal(t, "alice|bob", PairKey("alice", "bob"))
	assert.Equal(t, PairKey("alice", "bob"), PairKey("bob", "alice"))
	assert.NotEqual(t, PairKey("alice", "bob"), PairKey("alice", "carol"))
}

func TestCouple_Partner(t *testing.T) {
	c := &Couple{User1ID: "alice", User2ID: "bob"}

	tests := []struct {
		user string
		want string
	}{
		{"alice", "bob"},
		{"bob", "alice"},
		{"carol", ""},
	}

	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Partner(tt.user))
		})
	}
}

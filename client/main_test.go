package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildFrame(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"create r1", `{"type":"CREATE_ROOM","roomId":"r1","playerNickname":"alice"}`},
		{"join", `{"type":"JOIN_ROOM","playerNickname":"alice"}`},
		{"ready", `{"type":"PLAYER_READY","isReady":true,"playerNickname":"alice"}`},
		{"unready", `{"type":"PLAYER_READY","isReady":false,"playerNickname":"alice"}`},
		{"start", `{"type":"START_GAME","playerNickname":"alice"}`},
		{"claim t2", `{"type":"CLAIM_TERRITORY","territoryId":"t2","playerNickname":"alice"}`},
		{"reset", `{"type":"RESET_GAME"}`},
		{`raw {"type":"PING"}`, `{"type":"PING"}`},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := buildFrame("alice", tt.line)
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestBuildFrame_Errors(t *testing.T) {
	for _, line := range []string{"create", "claim", "dance"} {
		_, err := buildFrame("alice", line)
		require.Error(t, err, line)
	}

	got, err := buildFrame("alice", "   ")
	require.NoError(t, err)
	require.Nil(t, got)
	require.False(t, json.Valid(got))
}

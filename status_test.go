// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusInit, "INIT"},
		{StatusOK, "OK"},
		{StatusError, "ERROR"},
		{StatusConnected, "CONNECTED"},
		{StatusDisconnected, "DISCONNECTED"},
		{StatusListening, "LISTENING"},
		{StatusInvalid, "INVALID"},
		{Status(99), "Status(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

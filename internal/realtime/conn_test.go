package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camayank/clientportal-realtime/internal/domain"
	apperrors "github.com/camayank/clientportal-realtime/internal/errors"
)

func TestConn_InitialState(t *testing.T) {
	conn, _ := newTestConn(t, domain.Identity{UserID: 5, Role: domain.RoleClient})

	assert.Equal(t, domain.StateAuthenticated, conn.State())
	assert.False(t, conn.IsOpen())
	assert.True(t, conn.Alive())
	assert.Equal(t, domain.Identity{UserID: 5, Role: domain.RoleClient}, conn.Identity())
}

func TestConn_SendRequiresOpenState(t *testing.T) {
	conn, client := newTestConn(t, domain.Identity{UserID: 5, Role: domain.RoleClient})

	msg := domain.SuccessNotification("hello", time.Now())

	// Authenticated but not yet registered: no sends.
	err := conn.Send(msg)
	require.Error(t, err)
	var structured *apperrors.Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, apperrors.TypeDelivery, structured.Type)

	conn.markOpen()
	require.NoError(t, conn.Send(msg))

	received := readMessage(t, client)
	assert.Equal(t, domain.MessageNotification, received.Type)
}

func TestConn_SendAfterCloseFails(t *testing.T) {
	conn, _ := newTestConn(t, domain.Identity{UserID: 5, Role: domain.RoleClient})
	conn.markOpen()

	conn.Close("test")
	assert.Equal(t, domain.StateClosed, conn.State())

	err := conn.Send(domain.SuccessNotification("late", time.Now()))
	assert.Error(t, err)
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	conn, _ := newTestConn(t, domain.Identity{UserID: 5, Role: domain.RoleClient})
	conn.markOpen()

	conn.Close("first")
	conn.Close("second")
	conn.Close("third")

	assert.Equal(t, domain.StateClosed, conn.State())
}

func TestConn_CloseSendsCloseFrame(t *testing.T) {
	conn, client := newTestConn(t, domain.Identity{UserID: 5, Role: domain.RoleClient})
	conn.markOpen()

	conn.Close("going away")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocketIsCloseError(err), "expected a close frame, got: %v", err)
}

func TestConn_PongSetsAliveFlag(t *testing.T) {
	conn, client := newTestConn(t, domain.Identity{UserID: 5, Role: domain.RoleClient})
	conn.markOpen()

	// Client read loop answers pings with pongs automatically.
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.ClearAlive()
	require.False(t, conn.Alive())

	require.NoError(t, conn.Ping())
	assert.True(t, waitFor(conn.Alive), "pong should set the alive flag")
}

func TestConn_WireFormat(t *testing.T) {
	conn, client := newTestConn(t, domain.Identity{UserID: 9, Role: domain.RoleStaff})
	conn.markOpen()

	msg, err := domain.NewMessage(domain.MessageChat, domain.ChatEvent{
		SenderID:  9,
		Content:   "status update ready",
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, conn.Send(msg))

	received := readMessage(t, client)
	require.Equal(t, domain.MessageChat, received.Type)

	var event domain.ChatEvent
	require.NoError(t, json.Unmarshal(received.Payload, &event))
	assert.Equal(t, domain.UserID(9), event.SenderID)
	assert.Equal(t, "status update ready", event.Content)
}

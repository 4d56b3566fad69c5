package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/IPCLab/backend/internal/coordinator"
	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc"
	"github.com/GriffinCanCode/IPCLab/backend/internal/logging"
	"github.com/GriffinCanCode/IPCLab/backend/internal/types"
)

type fakeChannel struct {
	mech   types.Mechanism
	active bool
	lastOp types.OperationRecord
}

func (f *fakeChannel) Mechanism() types.Mechanism { return f.mech }

func (f *fakeChannel) Start() error {
	f.active = true
	f.lastOp = types.OperationRecord{Status: ipc.StatusReady}
	return nil
}

func (f *fakeChannel) Send(message string) (types.OperationRecord, error) {
	f.lastOp = types.OperationRecord{Message: message, Bytes: len(message) + 1, Status: ipc.StatusSent}
	return f.lastOp, nil
}

func (f *fakeChannel) Receive() (types.OperationRecord, error) {
	f.lastOp = types.OperationRecord{Message: "echo", Bytes: 5, Status: ipc.StatusReceived}
	return f.lastOp, nil
}

func (f *fakeChannel) Close() error {
	f.active = false
	return nil
}

func (f *fakeChannel) Active() bool { return f.active }

func (f *fakeChannel) Pid() int { return 0 }

func (f *fakeChannel) LastOp() types.OperationRecord { return f.lastOp }

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	channels := []coordinator.Channel{
		&fakeChannel{mech: types.MechanismPipes},
		&fakeChannel{mech: types.MechanismSockets},
		&fakeChannel{mech: types.MechanismSharedMemory},
	}
	coord := coordinator.New(logging.NewNop(), channels)

	h := NewHandlers(coord)
	r := gin.New()
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/ipc/status", h.Status)
	r.POST("/ipc/start", h.Start)
	r.POST("/ipc/stop", h.Stop)
	r.POST("/ipc/restart", h.Restart)
	r.POST("/ipc/send", h.Send)
	r.GET("/ipc/receive/:mechanism", h.Receive)
	r.POST("/ipc/command", h.Command)
	r.GET("/ipc/logs/:mechanism", h.Logs)
	r.GET("/ipc/detail/:mechanism", h.Detail)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRootAndHealth(t *testing.T) {
	r := newTestRouter()

	w := do(r, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "online")

	w = do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestStartSendStatusFlow(t *testing.T) {
	r := newTestRouter()

	w := do(r, http.MethodPost, "/ipc/start", `{"mechanism":"pipes"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/ipc/send", `{"mechanism":"pipes","message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"sent"`)

	w = do(r, http.MethodGet, "/ipc/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status types.CoordinatorStatus
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &status))
	require.Len(t, status.Mechanisms, 3)
	for _, ms := range status.Mechanisms {
		if ms.Type == types.MechanismPipes {
			assert.True(t, ms.IsActive)
			assert.Equal(t, uint64(1), ms.MessagesSent)
		}
	}
}

func TestSendInactiveConflicts(t *testing.T) {
	r := newTestRouter()

	w := do(r, http.MethodPost, "/ipc/send", `{"mechanism":"sockets","message":"hello"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSendValidation(t *testing.T) {
	r := newTestRouter()

	w := do(r, http.MethodPost, "/ipc/send", `{"mechanism":"pipes"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/ipc/send", `{"mechanism":"telegraph","message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/ipc/start", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommandEndpoint(t *testing.T) {
	r := newTestRouter()

	w := do(r, http.MethodPost, "/ipc/command", `{"action":"start","mechanism":"shared_memory"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res types.CommandResult
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "ok", res.Status)

	// Malformed commands are rejected before reaching the coordinator.
	w = do(r, http.MethodPost, "/ipc/command", `{"action":"send","mechanism":"pipes"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogsAndDetail(t *testing.T) {
	r := newTestRouter()

	do(r, http.MethodPost, "/ipc/start", `{"mechanism":"pipes"}`)
	do(r, http.MethodPost, "/ipc/send", `{"mechanism":"pipes","message":"hello"}`)

	w := do(r, http.MethodGet, "/ipc/logs/pipes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sent")

	w = do(r, http.MethodGet, "/ipc/detail/pipes", "")
	require.Equal(t, http.StatusOK, w.Code)

	var detail types.MechanismDetail
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, types.MechanismPipes, detail.Mechanism)
	assert.Equal(t, ipc.StatusSent, detail.LastOperation.Status)

	w = do(r, http.MethodGet, "/ipc/logs/telegraph", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogsCountQuery(t *testing.T) {
	r := newTestRouter()

	do(r, http.MethodPost, "/ipc/start", `{"mechanism":"pipes"}`)
	for i := 0; i < 5; i++ {
		do(r, http.MethodPost, "/ipc/send", `{"mechanism":"pipes","message":"hello"}`)
	}

	w := do(r, http.MethodGet, "/ipc/logs/pipes?count=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Entries []string `json:"entries"`
		Count   int      `json:"count"`
	}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Entries, 2)
	for _, entry := range body.Entries {
		assert.Contains(t, entry, "sent")
	}

	w = do(r, http.MethodGet, "/ipc/logs/pipes?count=nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/ipc/logs/pipes?count=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceiveEndpoint(t *testing.T) {
	r := newTestRouter()

	do(r, http.MethodPost, "/ipc/start", `{"mechanism":"shared_memory"}`)
	w := do(r, http.MethodGet, "/ipc/receive/shared_memory", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"received"`)
}

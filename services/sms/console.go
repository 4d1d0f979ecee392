package smssvc

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
)

const statusQueued = "queued"

var errUndeliverable = errors.New("undeliverable number")

type consoleService struct {
	std *log.Logger
}

var _ core.SMSService = (*consoleService)(nil)

// NewConsoleService prints the messages instead of sending them.
func NewConsoleService(std *log.Logger) core.SMSService {
	return &consoleService{std: std}
}

func (svc consoleService) Send(_ context.Context, msg core.SMSMessage) (core.SMSResult, error) {
	sid := "SM" + uuid.NewString()
	svc.std.Printf("SMS %s to %s: %s\n", sid, msg.To, msg.Body)
	return core.SMSResult{SID: sid, Status: statusQueued}, nil
}

// ConsoleServiceMock records the messages. Sending to one of the failing numbers returns an error.
type ConsoleServiceMock struct {
	mu      sync.Mutex
	sent    []core.SMSMessage
	failing map[string]bool
}

var _ core.SMSService = (*ConsoleServiceMock)(nil)

func NewConsoleServiceMock(failing ...string) *ConsoleServiceMock {
	svc := &ConsoleServiceMock{failing: make(map[string]bool, len(failing))}
	for _, num := range failing {
		svc.failing[num] = true
	}
	return svc
}

func (svc *ConsoleServiceMock) Send(_ context.Context, msg core.SMSMessage) (core.SMSResult, error) {
	if svc.failing[msg.To] {
		return core.SMSResult{}, errors.Wrap(errUndeliverable, msg.To)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.sent = append(svc.sent, msg)
	return core.SMSResult{SID: "SM" + uuid.NewString(), Status: statusQueued}, nil
}

// Sent returns the messages sent so far.
func (svc *ConsoleServiceMock) Sent() []core.SMSMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.SMSMessage(nil), svc.sent...)
}

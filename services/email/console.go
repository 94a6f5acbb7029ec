package emailsvc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/vladapp/backend/core"
)

// consoleService writes emails to the logger instead of sending them.
// It keeps every sent message around so tests can inspect them.
type consoleService struct {
	mu     sync.Mutex
	sent   []core.EmailMessage
	logger core.Logger
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(logger core.Logger) *consoleService {
	return &consoleService{logger: logger}
}

func (svc *consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if msg.HasRecipients() && msg.HasContent() {
			svc.send(*msg)
		}
	}
}

func (svc *consoleService) send(msg core.EmailMessage) {
	svc.mu.Lock()
	svc.sent = append(svc.sent, msg)
	svc.mu.Unlock()

	var to []string
	for _, addr := range msg.To {
		to = append(to, addr.String())
	}
	svc.logger.Info(fmt.Sprintf(
		"sending email\nTo: %s\nSubject: %s\n\n%s",
		strings.Join(to, ", "), msg.Subject, msg.TextContent,
	))
}

// SentMessages returns a snapshot of all messages sent so far.
func (svc *consoleService) SentMessages() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]core.EmailMessage, len(svc.sent))
	copy(out, svc.sent)
	return out
}

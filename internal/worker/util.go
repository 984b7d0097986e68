package worker

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jihoonkim/legisub/internal/asr"
)

// atomicTime is a small mutex-guarded time.Time, used for the "last
// provider activity" timestamp shared between the receiver and watchdog
// sub-tasks.
type atomicTime struct {
	mu sync.Mutex
	t  time.Time
}

func (a *atomicTime) Store(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.t = t
}

func (a *atomicTime) Load() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t
}

func decodeFrameType(raw []byte, out *asr.Frame) error {
	return json.Unmarshal(raw, out)
}

func readAll(resp *http.Response) ([]byte, error) {
	return io.ReadAll(resp.Body)
}

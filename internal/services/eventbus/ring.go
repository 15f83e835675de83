package eventbus

import "github.com/iwtcode/cncService/internal/domain/models"

// ring хранит последние события топика для повторной доставки.
type ring struct {
	buf   []models.Event
	start int
	count int
}

func newRing(size int) *ring {
	return &ring{buf: make([]models.Event, max(size, 1))}
}

func (r *ring) push(ev models.Event) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = ev
		r.count++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

// oldest возвращает Seq самого старого хранимого события, 0 если пусто.
func (r *ring) oldest() uint64 {
	if r.count == 0 {
		return 0
	}
	return r.buf[r.start].Seq
}

// since возвращает события с Seq > seq по возрастанию.
func (r *ring) since(seq uint64) []models.Event {
	var out []models.Event
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

package controller

type commandKind int

const (
	// cmdStream - строка задания, подтверждение продвигает курсор.
	cmdStream commandKind = iota
	// cmdRaw - одиночная команда оператора, ответ уходит вызывающему.
	cmdRaw
	// cmdInternal - служебная команда: преамбула или последовательность
	// остановки.
	cmdInternal
)

type command struct {
	kind     commandKind
	streamID string
	index    int // позиция строки в задании, для cmdStream
	lineNo   int // номер строки протокола, 0 - без нумерации
	text     string
	reply    chan commandResult
}

type commandResult struct {
	reply string
	ok    bool
	err   error
}

// inflightCommand - отправленная команда, ожидающая подтверждения.
type inflightCommand struct {
	command
	bytes int
}

// CommandQueue - FIFO команд, ожидающих отправки. Принадлежит циклу
// сессии и не синхронизирован.
type CommandQueue struct {
	items []command
	head  int
}

func (q *CommandQueue) Push(c command) {
	q.items = append(q.items, c)
}

func (q *CommandQueue) Peek() (command, bool) {
	if q.head >= len(q.items) {
		return command{}, false
	}
	return q.items[q.head], true
}

func (q *CommandQueue) Pop() (command, bool) {
	c, ok := q.Peek()
	if !ok {
		return c, false
	}
	q.items[q.head] = command{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return c, true
}

func (q *CommandQueue) Len() int {
	return len(q.items) - q.head
}

// Flush отбрасывает все неотправленные команды и возвращает их.
func (q *CommandQueue) Flush() []command {
	rest := append([]command(nil), q.items[q.head:]...)
	q.items = q.items[:0]
	q.head = 0
	return rest
}

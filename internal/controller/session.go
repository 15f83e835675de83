// Package controller реализует сессию с контроллером станка: потоковую
// передачу строк с управлением окном подтверждений, паузу, отмену и
// одиночные команды оператора.
//
// Все изменяемое состояние сессии принадлежит одной горутине цикла. Внешние
// вызовы передаются в цикл через канал запросов, строки от контроллера -
// через канал кадров, поэтому учет окна не требует тонкой синхронизации.
package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/iwtcode/cncService/internal/controller/dialect"
	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/middleware/logging"
	"github.com/iwtcode/cncService/internal/transport"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

const DefaultDrainTimeout = 30 * time.Second

// Options задает параметры сессии.
type Options struct {
	ConnectionID string
	Params       transport.Params
	Dialect      dialect.Dialect
	// Window > 0 фиксирует окно (не больше MaxWindow диалекта). 0 - окно
	// диалекта по умолчанию, которое растет по объявлениям контроллера.
	Window int
	// HaltOnCancel отправляет последовательность остановки при отмене.
	HaltOnCancel bool
	DrainTimeout time.Duration
}

// Status - согласованный снимок состояния сессии.
type Status struct {
	State       models.WorkflowState
	Window      int
	Outstanding int
	StreamID    string
	Cursor      int
	Total       int
	Firmware    string
	LastErr     error
}

type opKind int

const (
	opStart opKind = iota
	opPause
	opResume
	opCancel
	opCommand
)

func (o opKind) String() string {
	switch o {
	case opStart:
		return "start"
	case opPause:
		return "pause"
	case opResume:
		return "resume"
	case opCancel:
		return "cancel"
	default:
		return "command"
	}
}

type request struct {
	op       opKind
	streamID string
	lines    []string
	line     string
	result   chan commandResult
	reply    chan error
}

type frame struct {
	line []byte
	err  error
}

// stream - активное задание в сессии.
type stream struct {
	id     string
	lines  []string
	next   int // следующая строка к отправке
	cursor int // количество подтвержденных строк
}

// Session - одна сессия с контроллером поверх одного транспорта.
type Session struct {
	opts     Options
	dialect  dialect.Dialect
	opener   transport.Opener
	observer Observer
	logger   *logging.Logger

	lifecycle sync.Mutex // сериализует Open и Close

	mu            sync.Mutex
	state         models.WorkflowState
	window        int
	inflight      []inflightCommand
	inflightBytes int
	queue         CommandQueue
	stream        *stream
	pendingErr    *dialect.Reply
	awaitReset    bool
	firmware      string
	lastErr       error
	linkErr       error
	drain         *time.Timer
	notes         []func()

	port     transport.Port
	requests chan request
	stop     chan struct{}
	done     chan struct{}
}

func NewSession(opts Options, opener transport.Opener, observer Observer, logger *logging.Logger) *Session {
	if opts.Dialect == nil {
		opts.Dialect = dialect.ForName("")
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Session{
		opts:     opts,
		dialect:  opts.Dialect,
		opener:   opener,
		observer: observer,
		logger:   logger.WithPrefix("SESSION").WithPrefix(opts.ConnectionID),
		state:    models.StateDisconnected,
		window:   initialWindow(opts),
	}
}

func initialWindow(opts Options) int {
	w := opts.Dialect.DefaultWindow()
	if opts.Window > 0 {
		w = min(opts.Window, opts.Dialect.MaxWindow())
	}
	return max(w, 1)
}

func (s *Session) ID() string { return s.opts.ConnectionID }

func (s *Session) Dialect() dialect.Dialect { return s.dialect }

// Open открывает транспорт и запускает цикл сессии. Допустим только из
// состояния Disconnected.
func (s *Session) Open(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state != models.StateDisconnected {
		err := s.invalid("connect", "connection", s.opts.ConnectionID)
		s.mu.Unlock()
		return err
	}
	s.setState(models.StateConnecting, nil)
	s.flush()

	port, err := s.opener.Open(ctx, s.opts.Params)

	s.mu.Lock()
	if err != nil {
		err = s.withConnectionID(err)
		s.lastErr = err
		s.setState(models.StateDisconnected, err)
		s.flush()
		s.logger.Warn("Failed to open transport", "address", s.opts.Params.Address, "error", err)
		return err
	}

	s.port = port
	s.window = initialWindow(s.opts)
	s.inflight = nil
	s.inflightBytes = 0
	s.pendingErr = nil
	s.awaitReset = false
	s.linkErr = nil
	s.lastErr = nil
	s.setState(models.StateIdle, nil)
	s.flush()

	// Цикл стартует после доставки Idle, чтобы наблюдатель видел
	// переходы строго по порядку.
	s.mu.Lock()
	s.requests = make(chan request)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(port, s.requests, s.stop, s.done)
	s.mu.Unlock()

	s.logger.Info("Session opened", "address", s.opts.Params.Address, "dialect", s.dialect.Name())
	return nil
}

// Close закрывает сессию. Активное задание отменяется. Идемпотентен.
func (s *Session) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop = nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Done закрывается, когда цикл текущего подключения завершился.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:       s.state,
		Window:      s.window,
		Outstanding: len(s.inflight),
		Firmware:    s.firmware,
		LastErr:     s.lastErr,
	}
	if s.stream != nil {
		st.StreamID = s.stream.id
		st.Cursor = s.stream.cursor
		st.Total = len(s.stream.lines)
	}
	return st
}

// StartStream начинает потоковую передачу строк. Допустимо только в Idle.
func (s *Session) StartStream(ctx context.Context, streamID string, lines []string) error {
	return s.call(ctx, request{op: opStart, streamID: streamID, lines: lines})
}

func (s *Session) Pause(ctx context.Context, streamID string) error {
	return s.call(ctx, request{op: opPause, streamID: streamID})
}

func (s *Session) Resume(ctx context.Context, streamID string) error {
	return s.call(ctx, request{op: opResume, streamID: streamID})
}

// Cancel прекращает отправку строк задания. Подтверждения уже отправленных
// строк дожидаются в состоянии Stopped.
func (s *Session) Cancel(ctx context.Context, streamID string) error {
	return s.call(ctx, request{op: opCancel, streamID: streamID})
}

// SendCommand отправляет одиночную команду в простаивающую сессию и ждет
// ответа контроллера. Команда проходит через то же окно, что и задания.
func (s *Session) SendCommand(ctx context.Context, line string) (models.CommandReply, error) {
	line = strings.TrimSpace(line)
	out := models.CommandReply{Line: line}

	result := make(chan commandResult, 1)
	if err := s.call(ctx, request{op: opCommand, line: line, result: result}); err != nil {
		return out, err
	}

	select {
	case r := <-result:
		out.Reply, out.OK = r.reply, r.ok
		return out, r.err
	case <-ctx.Done():
		return out, apperrors.NewConnectionError(apperrors.ConnTimeout, s.opts.ConnectionID, s.opts.Params.Address, ctx.Err())
	}
}

func (s *Session) call(ctx context.Context, req request) error {
	s.mu.Lock()
	requests, done := s.requests, s.done
	if requests == nil || isClosed(done) {
		err := s.invalid(req.op.String(), "connection", s.opts.ConnectionID)
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	req.reply = make(chan error, 1)
	select {
	case requests <- req:
	case <-done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.invalid(req.op.String(), "connection", s.opts.ConnectionID)
	case <-ctx.Done():
		return ctx.Err()
	}
	// Ответ приходит после доставки уведомлений наблюдателю.
	return <-req.reply
}

// --- Цикл сессии ---

func (s *Session) run(port transport.Port, requests <-chan request, stop, done chan struct{}) {
	defer close(done)

	frames := make(chan frame, 64)
	go readFrames(port, frames, done)

	for {
		var drainC <-chan time.Time
		s.mu.Lock()
		if s.drain != nil {
			drainC = s.drain.C
		}
		s.mu.Unlock()

		var exit bool
		select {
		case req := <-requests:
			var err error
			exit = s.step(func() { err = s.handleRequest(req) })
			req.reply <- err
		case f := <-frames:
			exit = s.step(func() {
				if f.err != nil {
					s.linkErr = f.err
					return
				}
				s.handleLine(string(f.line))
			})
		case <-drainC:
			exit = s.step(s.drainExpired)
		case <-stop:
			s.step(func() { s.shutdown(nil) })
			exit = true
		}
		if exit {
			return
		}
	}
}

func readFrames(port transport.Port, frames chan<- frame, done <-chan struct{}) {
	for line, err := range port.Lines() {
		select {
		case frames <- frame{line: line, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// step выполняет обработчик под мьютексом, досылает команды в окно и
// доставляет накопленные уведомления уже без мьютекса.
func (s *Session) step(fn func()) (exit bool) {
	s.mu.Lock()
	fn()
	if s.linkErr == nil && s.state != models.StateDisconnected {
		s.pump()
	}
	if s.linkErr != nil && s.state != models.StateDisconnected {
		s.shutdown(s.linkErr)
	}
	exit = s.state == models.StateDisconnected
	s.flush()
	return exit
}

// flush освобождает мьютекс и доставляет уведомления наблюдателю.
func (s *Session) flush() {
	notes := s.notes
	s.notes = nil
	s.mu.Unlock()
	for _, n := range notes {
		n()
	}
}

func (s *Session) handleRequest(req request) error {
	switch req.op {
	case opStart:
		return s.startStream(req.streamID, req.lines)
	case opPause:
		return s.pauseStream(req.streamID)
	case opResume:
		return s.resumeStream(req.streamID)
	case opCancel:
		return s.cancelStream(req.streamID)
	default:
		return s.enqueueCommand(req.line, req.result)
	}
}

func (s *Session) startStream(id string, lines []string) error {
	if s.state != models.StateIdle {
		return s.invalid("start", "connection", s.opts.ConnectionID)
	}

	s.stream = &stream{id: id, lines: lines}
	s.lastErr = nil
	for _, p := range s.dialect.Preamble() {
		s.queue.Push(command{kind: cmdInternal, streamID: id, text: p})
	}
	s.notifyStream(models.JobRunning, nil)
	s.setState(models.StateRunning, nil)
	s.logger.Info("Stream started", "job_id", id, "lines", len(lines), "window", s.window)

	if len(lines) == 0 {
		s.queue.Flush()
		s.finishStream(models.JobCompleted, nil)
		s.setState(models.StateIdle, nil)
	}
	return nil
}

func (s *Session) pauseStream(id string) error {
	if s.state != models.StateRunning || s.stream == nil || s.stream.id != id {
		return s.invalid("pause", "job", id)
	}
	s.setState(models.StatePaused, nil)
	s.notifyStream(models.JobPaused, nil)
	s.logger.Info("Stream paused", "job_id", id, "cursor", s.stream.cursor, "outstanding", len(s.inflight))
	return nil
}

func (s *Session) resumeStream(id string) error {
	if s.state != models.StatePaused || s.stream == nil || s.stream.id != id {
		return s.invalid("resume", "job", id)
	}
	s.setState(models.StateRunning, nil)
	s.notifyStream(models.JobRunning, nil)
	s.logger.Info("Stream resumed", "job_id", id, "cursor", s.stream.cursor)
	return nil
}

func (s *Session) cancelStream(id string) error {
	active := s.state == models.StateRunning || s.state == models.StatePaused
	if !active || s.stream == nil || s.stream.id != id {
		return s.invalid("cancel", "job", id)
	}

	s.dropQueued(errors.New("job cancelled"))
	s.finishStream(models.JobCancelled, nil)

	if s.opts.HaltOnCancel {
		s.halt()
	}
	if s.drained() {
		s.setState(models.StateIdle, nil)
		return nil
	}

	s.setState(models.StateStopped, nil)
	s.drain = time.NewTimer(s.opts.DrainTimeout)
	s.logger.Info("Draining after cancel", "job_id", id, "outstanding", len(s.inflight), "await_reset", s.awaitReset)
	return nil
}

// halt отправляет последовательность остановки диалекта. Байты реального
// времени пишутся в обход окна, командная остановка встает в очередь.
func (s *Session) halt() {
	h := s.dialect.Halt()
	if h == nil {
		return
	}
	if h.Acked {
		s.queue.Push(command{kind: cmdInternal, text: strings.TrimSpace(string(h.Bytes))})
	} else if err := s.port.Write(h.Bytes); err != nil {
		s.linkErr = err
		return
	}
	if h.Resets {
		s.awaitReset = true
	}
	s.logger.Warn("Halt sequence sent", "dialect", s.dialect.Name())
}

func (s *Session) enqueueCommand(line string, result chan commandResult) error {
	if s.state != models.StateIdle {
		return s.invalid("command", "connection", s.opts.ConnectionID)
	}
	s.queue.Push(command{kind: cmdRaw, text: line, reply: result})
	return nil
}

// nextCommand выбирает следующую команду к отправке: сначала служебные и
// одиночные команды из очереди, затем строки активного задания.
func (s *Session) nextCommand() (c command, fromQueue, ok bool) {
	if c, ok := s.queue.Peek(); ok {
		return c, true, true
	}
	st := s.stream
	if s.state != models.StateRunning || st == nil || st.next >= len(st.lines) {
		return command{}, false, false
	}
	return command{
		kind:     cmdStream,
		streamID: st.id,
		index:    st.next,
		lineNo:   st.next + 1,
		text:     st.lines[st.next],
	}, false, true
}

// pump отправляет команды, пока окно и байтовый бюджет контроллера это
// позволяют. Число неподтвержденных команд никогда не превышает окно.
func (s *Session) pump() {
	for s.linkErr == nil && len(s.inflight) < s.window {
		c, fromQueue, ok := s.nextCommand()
		if !ok {
			return
		}

		// перевод строки внутри команды контроллер примет за несколько команд
		if strings.ContainsAny(c.text, "\r\n") {
			s.logger.Warn("Line contains a line break", "line", c.text)
			s.rejectLine(c, fromQueue, apperrors.ProtoMalformedCommand)
			continue
		}
		data := s.dialect.Format(c.text, c.lineNo)
		if len(data) > s.dialect.MaxLineLength() {
			s.logger.Warn("Line exceeds controller buffer", "line", c.text, "bytes", len(data), "limit", s.dialect.MaxLineLength())
			s.rejectLine(c, fromQueue, apperrors.ProtoBufferOverflow)
			continue
		}
		if rx := s.dialect.RxBufferSize(); rx > 0 && len(s.inflight) > 0 && s.inflightBytes+len(data) > rx {
			return
		}

		if err := s.port.Write(data); err != nil {
			s.linkErr = err
			return
		}
		if fromQueue {
			s.queue.Pop()
		} else {
			s.stream.next++
		}
		s.inflight = append(s.inflight, inflightCommand{command: c, bytes: len(data)})
		s.inflightBytes += len(data)
	}
}

// rejectLine отклоняет команду, не отправляя ее на провод.
func (s *Session) rejectLine(c command, fromQueue bool, kind apperrors.ProtocolErrorKind) {
	if fromQueue {
		s.queue.Pop()
	}
	perr := &apperrors.ProtocolError{
		Kind:         kind,
		ConnectionID: s.opts.ConnectionID,
		JobID:        c.streamID,
		Reply:        c.text,
	}

	switch c.kind {
	case cmdRaw:
		c.reply <- commandResult{err: perr}
	case cmdStream:
		perr.Line = c.index + 1
		s.failStream(perr)
	}
}

// --- Обработка ответов ---

func (s *Session) handleLine(line string) {
	if s.state == models.StateError {
		s.logger.Debug("Line ignored in error state", "line", line)
		return
	}

	r := s.dialect.Classify(line)
	if r.Ack {
		s.acknowledge(r)
		return
	}

	switch r.Kind {
	case dialect.ReplyError, dialect.ReplyResend:
		// Ошибка без подтверждения относится к команде, которую закроет
		// следующий "ok". Первая причина важнее последующих.
		if s.pendingErr == nil {
			s.pendingErr = &r
		}
	case dialect.ReplyAlarm:
		s.alarm(r)
	case dialect.ReplyStartup:
		s.controllerReset(r)
	case dialect.ReplyInfo, dialect.ReplyStatus:
		if r.Firmware != "" {
			s.firmware = r.Firmware
		}
		s.logger.Debug("Controller message", "kind", r.Kind.String(), "line", line)
	default:
		s.logger.Debug("Unrecognized controller line", "line", line)
	}
}

func (s *Session) acknowledge(r dialect.Reply) {
	if len(s.inflight) == 0 {
		s.pendingErr = nil
		if s.stream != nil {
			s.enterError(&apperrors.ProtocolError{
				Kind:         apperrors.ProtoMalformedReply,
				ConnectionID: s.opts.ConnectionID,
				JobID:        s.stream.id,
				Reply:        r.Raw,
			})
			return
		}
		s.logger.Warn("Unsolicited acknowledgment ignored", "line", r.Raw)
		return
	}

	head := s.inflight[0]
	s.inflight[0] = inflightCommand{}
	s.inflight = s.inflight[1:]
	s.inflightBytes -= head.bytes

	failure := s.pendingErr
	if r.Kind == dialect.ReplyError {
		failure = &r
	}
	s.pendingErr = nil
	s.growWindow(r.Advertised)

	switch head.kind {
	case cmdRaw:
		res := commandResult{reply: r.Raw, ok: failure == nil}
		if failure != nil {
			res.reply = failure.Raw
		}
		head.reply <- res
	case cmdStream, cmdInternal:
		st := s.stream
		if st == nil || st.id != head.streamID {
			// подтверждение команды уже завершенного задания
			break
		}
		if failure != nil {
			perr := &apperrors.ProtocolError{
				Kind:         failure.Fault,
				ConnectionID: s.opts.ConnectionID,
				JobID:        st.id,
				Reply:        failure.Raw,
			}
			if perr.Kind == "" {
				perr.Kind = apperrors.ProtoCommandRejected
			}
			if head.kind == cmdStream {
				perr.Line = head.index + 1
			}
			s.failStream(perr)
			break
		}
		if head.kind == cmdStream {
			st.cursor++
			cursor, total := st.cursor, len(st.lines)
			s.notify(func() { s.observer.StreamProgress(s.opts.ConnectionID, st.id, cursor, total) })
			if st.cursor == len(st.lines) {
				s.finishStream(models.JobCompleted, nil)
				s.setState(models.StateIdle, nil)
			}
		}
	}

	if s.state == models.StateStopped && s.drained() {
		s.finishDrain()
	}
}

// growWindow расширяет окно по объявлению свободных слотов контроллера.
// Окно только растет и ограничено MaxWindow диалекта.
func (s *Session) growWindow(advertised int) {
	if advertised <= 0 || s.opts.Window > 0 {
		return
	}
	capacity := min(len(s.inflight)+advertised, s.dialect.MaxWindow())
	if capacity > s.window {
		s.logger.Debug("Window grown by controller advertisement", "from", s.window, "to", capacity)
		s.window = capacity
	}
}

func (s *Session) alarm(r dialect.Reply) {
	perr := &apperrors.ProtocolError{
		Kind:         apperrors.ProtoAlarm,
		ConnectionID: s.opts.ConnectionID,
		Reply:        r.Raw,
	}
	s.logger.Error("Controller alarm", "line", r.Raw)
	if s.stream != nil {
		perr.JobID = s.stream.id
		s.failStream(perr)
		return
	}
	s.lastErr = perr
}

// controllerReset обрабатывает приветствие прошивки: контроллер отбросил
// все принятые команды, подтверждений по ним не будет.
func (s *Session) controllerReset(r dialect.Reply) {
	if r.Firmware != "" {
		s.firmware = r.Firmware
	}
	dropped := len(s.inflight)
	s.dropInflight(errors.New("controller reset"))

	if s.stream != nil {
		s.failStream(&apperrors.ProtocolError{
			Kind:         apperrors.ProtoAlarm,
			ConnectionID: s.opts.ConnectionID,
			JobID:        s.stream.id,
			Reply:        r.Raw,
		})
	}
	if dropped > 0 || s.awaitReset {
		s.logger.Info("Controller reset", "firmware", s.firmware, "dropped", dropped)
	}
	if s.state == models.StateStopped {
		s.awaitReset = false
		if s.drained() {
			s.finishDrain()
		}
	}
}

// --- Переходы ---

func (s *Session) drained() bool {
	return len(s.inflight) == 0 && s.queue.Len() == 0 && !s.awaitReset
}

func (s *Session) finishDrain() {
	s.stopDrainTimer()
	s.setState(models.StateIdle, nil)
	s.logger.Info("Drain complete")
}

func (s *Session) drainExpired() {
	if s.state != models.StateStopped {
		return
	}
	s.drain = nil
	s.logger.Error("Drain timeout", "outstanding", len(s.inflight), "await_reset", s.awaitReset)
	s.enterError(&apperrors.ProtocolError{
		Kind:         apperrors.ProtoMalformedReply,
		ConnectionID: s.opts.ConnectionID,
		Reply:        "acknowledgments not received after cancel",
	})
}

func (s *Session) stopDrainTimer() {
	if s.drain != nil {
		s.drain.Stop()
		s.drain = nil
	}
}

// failStream завершает задание с ошибкой. Сессия возвращается в Idle,
// неподтвержденные команды задания продолжают учитываться в окне.
func (s *Session) failStream(err error) {
	s.dropQueued(err)
	s.finishStream(models.JobFailed, err)
	s.lastErr = err
	if s.state == models.StateRunning || s.state == models.StatePaused {
		s.setState(models.StateIdle, nil)
	}
}

func (s *Session) finishStream(status models.JobStatus, err error) {
	st := s.stream
	if st == nil {
		return
	}
	s.stream = nil
	cursor := st.cursor
	s.notify(func() { s.observer.StreamStatusChanged(s.opts.ConnectionID, st.id, status, cursor, err) })
	s.logger.Info("Stream finished", "job_id", st.id, "status", status, "cursor", cursor, "total", len(st.lines))
}

// enterError переводит сессию в Error. Из него выводит только отключение.
func (s *Session) enterError(err error) {
	s.stopDrainTimer()
	if s.stream != nil {
		s.finishStream(models.JobFailed, err)
	}
	s.dropQueued(err)
	s.dropInflight(err)
	s.awaitReset = false
	s.lastErr = err
	s.setState(models.StateError, err)
	s.logger.Error("Session entered error state", "error", err)
}

// shutdown останавливает цикл: cause == nil - штатное отключение.
func (s *Session) shutdown(cause error) {
	var connErr error
	if cause != nil {
		connErr = apperrors.NewConnectionError(apperrors.ConnIOFailure, s.opts.ConnectionID, s.opts.Params.Address, cause)
	}

	s.stopDrainTimer()
	if s.stream != nil {
		if connErr != nil {
			s.finishStream(models.JobFailed, connErr)
		} else {
			s.finishStream(models.JobCancelled, nil)
		}
	}
	reason := connErr
	if reason == nil {
		reason = transport.ErrClosed
	}
	s.dropQueued(reason)
	s.dropInflight(reason)
	s.awaitReset = false

	if connErr != nil {
		s.lastErr = connErr
		s.logger.Error("Transport failure", "error", cause)
	}
	if s.port != nil {
		_ = s.port.Close()
	}
	s.setState(models.StateDisconnected, connErr)
}

func (s *Session) dropQueued(err error) {
	for _, c := range s.queue.Flush() {
		if c.kind == cmdRaw {
			c.reply <- commandResult{err: err}
		}
	}
}

func (s *Session) dropInflight(err error) {
	for _, c := range s.inflight {
		if c.kind == cmdRaw {
			c.reply <- commandResult{err: err}
		}
	}
	s.inflight = nil
	s.inflightBytes = 0
	s.pendingErr = nil
}

func (s *Session) setState(state models.WorkflowState, err error) {
	if s.state == state {
		return
	}
	from := s.state
	s.state = state
	s.notify(func() { s.observer.SessionStateChanged(s.opts.ConnectionID, state, err) })
	s.logger.Debug("State changed", "from", from, "to", state)
}

func (s *Session) notifyStream(status models.JobStatus, err error) {
	st := s.stream
	cursor := st.cursor
	s.notify(func() { s.observer.StreamStatusChanged(s.opts.ConnectionID, st.id, status, cursor, err) })
}

func (s *Session) notify(fn func()) {
	s.notes = append(s.notes, fn)
}

func (s *Session) invalid(op, entity, id string) error {
	return apperrors.NewInvalidState(op, entity, id, string(s.state))
}

func (s *Session) withConnectionID(err error) error {
	var connErr *apperrors.ConnectionError
	if errors.As(err, &connErr) && connErr.ConnectionID == "" {
		connErr.ConnectionID = s.opts.ConnectionID
	}
	return err
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

package transporthttp

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/calendarapi/internal/config"
	"example.com/calendarapi/internal/domain"
	"example.com/calendarapi/internal/export"
	"example.com/calendarapi/internal/journal"
	"example.com/calendarapi/internal/store"
)

const (
	apiRoot   = "/api/v1/calendar"
	eventRoot = apiRoot + "/event/"
)

// Recorder receives committed changes. *journal.Journal implements it.
type Recorder interface {
	Record(c domain.Change)
}

type ServerDeps struct {
	Cfg     config.Config
	Store   *store.Store
	Journal Recorder       // optional
	Reader  journal.Reader // optional; enables readiness checks and metrics
	Now     func() time.Time
}

func (d *ServerDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *ServerDeps) record(r *http.Request, op domain.Op, ev domain.Event) {
	if d.Journal == nil {
		return
	}
	d.Journal.Record(domain.Change{
		RequestID: RequestIDFrom(r.Context()),
		Op:        op,
		Event:     ev,
		At:        d.now(),
	})
}

// readBody returns the raw request body. ok is false when a response has
// already been written.
func readBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			WriteProblem(w, http.StatusRequestEntityTooLarge, "body too large",
				"request body exceeds "+strconv.FormatInt(tooBig.Limit, 10)+" bytes", nil)
			return "", false
		}
		WriteProblem(w, http.StatusBadRequest, "unreadable body", err.Error(), nil)
		return "", false
	}
	return string(b), true
}

// pathDate parses the {date} path segment, answering 400 itself on failure.
func pathDate(w http.ResponseWriter, r *http.Request) (domain.Date, bool) {
	dt, err := domain.ParseDate(r.PathValue("date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: domain.MsgInvalidPathDate})
		return domain.Date{}, false
	}
	return dt, true
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "events": d.Store.Len()})
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if d.Reader != nil {
		if err := d.Reader.Ready(r.Context()); err != nil {
			WriteProblem(w, http.StatusServiceUnavailable, "not ready", "journal sink not reachable", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Events ---

func (d *ServerDeps) HandleCreate(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	ev, err := d.Store.Create(raw)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	d.record(r, domain.OpCreate, ev)
	slog.InfoContext(r.Context(), "event created", "date", ev.Date, "id", ev.ID)
	writeMessage(w, http.StatusCreated, "Event created successfully.")
}

func (d *ServerDeps) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Store.List())
}

func (d *ServerDeps) HandleRead(w http.ResponseWriter, r *http.Request) {
	dt, ok := pathDate(w, r)
	if !ok {
		return
	}
	ev, err := d.Store.Read(dt)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (d *ServerDeps) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	dt, ok := pathDate(w, r)
	if !ok {
		return
	}
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	ev, err := d.Store.Update(dt, raw)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	d.record(r, domain.OpUpdate, ev)
	slog.InfoContext(r.Context(), "event updated", "date", ev.Date, "id", ev.ID)
	writeMessage(w, http.StatusOK, "Event updated successfully.")
}

func (d *ServerDeps) HandleDelete(w http.ResponseWriter, r *http.Request) {
	dt, ok := pathDate(w, r)
	if !ok {
		return
	}
	ev, err := d.Store.Delete(dt)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	d.record(r, domain.OpDelete, ev)
	slog.InfoContext(r.Context(), "event deleted", "date", ev.Date, "id", ev.ID)
	writeMessage(w, http.StatusOK, "Event deleted successfully.")
}

// --- iCalendar feed ---

func (d *ServerDeps) HandleFeed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	if err := export.WriteICS(w, d.Store.List(), d.Cfg.PublicHost, d.now()); err != nil {
		slog.ErrorContext(r.Context(), "ics export failed", "err", err)
	}
}

// --- Journal metrics ---

type metricsResp struct {
	Totals  journal.Totals   `json:"totals"`
	Buckets []journal.Bucket `json:"buckets,omitempty"`
}

const defaultWindowSeconds = int64(24 * 60 * 60)  // last 24h default
const maxWindowSeconds = int64(90 * 24 * 60 * 60) // cap at 90 days (guardrail)

func (d *ServerDeps) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	op := strings.TrimSpace(q.Get("op"))
	fromStr := q.Get("from")
	toStr := q.Get("to")
	groupBy := q.Get("group_by")

	if op != "" && !domain.Op(op).Valid() {
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", "op must be create, update or delete", nil)
		return
	}
	if groupBy != "" && groupBy != "day" {
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", "group_by supports only day", nil)
		return
	}

	now := d.now().Unix()
	var from, to int64
	var err error

	switch {
	case fromStr == "" && toStr == "":
		from, to = now-defaultWindowSeconds, now
	case fromStr != "" && toStr == "":
		from, err = strconv.ParseInt(fromStr, 10, 64)
		if err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from must be epoch seconds", nil)
			return
		}
		to = now
	case fromStr == "" && toStr != "":
		to, err = strconv.ParseInt(toStr, 10, 64)
		if err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "to must be epoch seconds", nil)
			return
		}
		from = to - defaultWindowSeconds
	default:
		from, err = strconv.ParseInt(fromStr, 10, 64)
		if err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from must be epoch seconds", nil)
			return
		}
		to, err = strconv.ParseInt(toStr, 10, 64)
		if err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "to must be epoch seconds", nil)
			return
		}
	}
	if from > to {
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from must not be after to", nil)
		return
	}
	if to-from > maxWindowSeconds {
		from = to - maxWindowSeconds
	}

	jq := journal.Query{Op: op, From: from, To: to}
	ctx := r.Context()
	tot, err := d.Reader.QueryTotals(ctx, jq)
	if err != nil {
		WriteProblem(w, http.StatusInternalServerError, "query error", err.Error(), nil)
		return
	}
	resp := metricsResp{Totals: tot}
	if groupBy == "day" {
		resp.Buckets, err = d.Reader.QueryBucketsDaily(ctx, jq)
		if err != nil {
			WriteProblem(w, http.StatusInternalServerError, "query error", err.Error(), nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", d.HandleHealthz)
	mux.HandleFunc("GET /readyz", d.HandleReadyz)

	limitBody := BodyLimit(d.Cfg.MaxBodyBytes)
	mux.Handle("POST "+eventRoot+"{$}", limitBody(http.HandlerFunc(d.HandleCreate)))
	mux.HandleFunc("GET "+eventRoot+"{$}", d.HandleList)
	mux.HandleFunc("GET "+eventRoot+"{date}/{$}", d.HandleRead)
	mux.Handle("PUT "+eventRoot+"{date}/{$}", limitBody(http.HandlerFunc(d.HandleUpdate)))
	mux.HandleFunc("DELETE "+eventRoot+"{date}/{$}", d.HandleDelete)
	mux.HandleFunc("GET "+apiRoot+"/feed.ics", d.HandleFeed)

	if d.Reader != nil {
		var getMetrics http.Handler = http.HandlerFunc(d.HandleGetMetrics)
		getMetrics = RateLimitPerMinute(d.Cfg.RateLimitMetricsPerMin)(getMetrics)
		mux.Handle("GET "+apiRoot+"/journal/metrics", getMetrics)
	}

	return RequestID(AccessLog(mux))
}

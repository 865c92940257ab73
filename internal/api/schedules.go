package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hray3182/chime/internal/models"
	"github.com/hray3182/chime/internal/occurrence"
	"github.com/hray3182/chime/internal/rrule"
	"github.com/hray3182/chime/internal/store"
)

const maxBodyBytes = 1 << 20

// scheduleView adds the derived fields clients display.
type scheduleView struct {
	models.Schedule
	Notified bool       `json:"notified"`
	Next     *time.Time `json:"next,omitempty"`
}

func (s *Server) view(sc models.Schedule) scheduleView {
	v := scheduleView{Schedule: sc, Notified: sc.Notified()}
	if occ, ok := occurrence.Next(&sc, s.now()); ok {
		v.Next = &occ.At
	}
	return v
}

type scheduleRequest struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Date           string         `json:"date"`
	Time           string         `json:"time"`
	Repeat         *models.Repeat `json:"repeat"`
	TTSMessage     string         `json:"tts_message"`
	TTSLeadMessage string         `json:"tts_lead_message"`
}

func (r scheduleRequest) input() store.Input {
	return store.Input{
		Title:          r.Title,
		Description:    r.Description,
		Date:           r.Date,
		Time:           r.Time,
		Repeat:         r.Repeat,
		TTSMessage:     r.TTSMessage,
		TTSLeadMessage: r.TTSLeadMessage,
	}
}

// patchRequest distinguishes an absent repeat from an explicit null, which
// turns the schedule into a one-off.
type patchRequest struct {
	Title          *string         `json:"title"`
	Description    *string         `json:"description"`
	Date           *string         `json:"date"`
	Time           *string         `json:"time"`
	Repeat         json.RawMessage `json:"repeat"`
	TTSMessage     *string         `json:"tts_message"`
	TTSLeadMessage *string         `json:"tts_lead_message"`
}

func (p patchRequest) update() (store.Update, error) {
	u := store.Update{
		Title:          p.Title,
		Description:    p.Description,
		Date:           p.Date,
		Time:           p.Time,
		TTSMessage:     p.TTSMessage,
		TTSLeadMessage: p.TTSLeadMessage,
	}
	switch raw := bytes.TrimSpace(p.Repeat); {
	case len(raw) == 0:
	case bytes.Equal(raw, []byte("null")):
		u.ClearRepeat = true
	default:
		var rep models.Repeat
		if err := json.Unmarshal(raw, &rep); err != nil {
			return store.Update{}, fmt.Errorf("invalid repeat: %w", err)
		}
		u.Repeat = &rep
	}
	return u, nil
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	schedules := s.store.List()
	out := make([]scheduleView, 0, len(schedules))
	for _, sc := range schedules {
		out = append(out, s.view(sc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.Get(mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(sc))
}

// handleCreate accepts one schedule object or an array of them.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '[' {
		var reqs []scheduleRequest
		if err := json.Unmarshal(body, &reqs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		inputs := make([]store.Input, len(reqs))
		for i, req := range reqs {
			inputs[i] = req.input()
		}
		created, err := s.store.AddMany(inputs)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		out := make([]scheduleView, len(created))
		for i, sc := range created {
			out[i] = s.view(sc)
		}
		logrus.WithField("count", len(created)).Info("Created schedules")
		writeJSON(w, http.StatusCreated, out)
		return
	}

	var req scheduleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	sc, err := s.store.Add(req.input())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	logrus.WithField("schedule_id", sc.ID).Info("Created schedule")
	writeJSON(w, http.StatusCreated, s.view(sc))
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	u, err := req.update()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sc, err := s.store.Update(mux.Vars(r)["id"], u)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(sc))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upcomingItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	At        time.Time `json:"at"`
	Recurring bool      `json:"recurring"`
}

// handleUpcoming lists every occurrence in the next ?days=N days (default 7,
// at most 60), earliest first.
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 60 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 60")
			return
		}
		days = n
	}

	from := s.now()
	to := from.AddDate(0, 0, days)
	items := []upcomingItem{}
	for _, sc := range s.store.List() {
		times, err := rrule.Between(&sc, from, to)
		if err != nil {
			logrus.WithError(err).WithField("schedule_id", sc.ID).Warn("Skipping schedule in upcoming")
			continue
		}
		for _, at := range times {
			items = append(items, upcomingItem{ID: sc.ID, Title: sc.Title, At: at, Recurring: sc.IsRecurring()})
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].At.Before(items[j].At) })
	writeJSON(w, http.StatusOK, items)
}

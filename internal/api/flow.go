package api

import (
	"net/http"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/guide"
	"github.com/ashureev/skill-worlds/internal/identity"
)

type startFlowRequest struct {
	Method domain.SelectionMethod `json:"method"`
}

type replyRequest struct {
	Text string `json:"text"`
}

type toggleRequest struct {
	CareerID string `json:"career_id" validate:"required"`
}

type answerRequest struct {
	Option string `json:"option" validate:"required"`
}

// flow returns the tab's flow, writing the error response when there is none.
func (h *Handler) flow(w http.ResponseWriter, r *http.Request) (*guide.Flow, bool) {
	f, err := h.flows.Get(identity.SessionFromContext(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return nil, false
	}
	return f, true
}

func (h *Handler) writeFlow(w http.ResponseWriter, f *guide.Flow, extra map[string]any) {
	body := map[string]any{"flow": f.View()}
	for k, v := range extra {
		body[k] = v
	}
	JSON(w, http.StatusOK, body)
}

// StartFlow begins a new flow for the tab, replacing any previous one.
func (h *Handler) StartFlow(w http.ResponseWriter, r *http.Request) {
	var req startFlowRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if req.Method != "" && !req.Method.Valid() {
		WriteError(w, r, domain.NewInputError("method", "must be chatbot or manual"))
		return
	}
	sess := identity.SessionFromContext(r.Context())
	f, err := h.flows.Start(sess, req.Method)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if h.sockets != nil {
		h.sockets.Close(sess, "flow replaced")
	}
	JSON(w, http.StatusCreated, map[string]any{"flow": f.View()})
}

// GetFlow returns the flow snapshot.
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	h.writeFlow(w, f, nil)
}

// ChooseMethod picks the selection method of a flow started without one.
func (h *Handler) ChooseMethod(w http.ResponseWriter, r *http.Request) {
	var req startFlowRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	if err := f.Choose(req.Method); err != nil {
		WriteError(w, r, err)
		return
	}
	h.writeFlow(w, f, nil)
}

// ChatReply answers the chatbot's current question.
func (h *Handler) ChatReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	bot, err := f.Chatbot()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	msgs, err := bot.Reply(r.Context(), req.Text)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.writeFlow(w, f, map[string]any{"messages": msgs})
}

// ChatToggle flips a recommended career chip.
func (h *Handler) ChatToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeValid(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	bot, err := f.Chatbot()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	selected, err := bot.Toggle(req.CareerID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.writeFlow(w, f, map[string]any{"selected": selected})
}

// ChatContinue persists the chatbot selection.
func (h *Handler) ChatContinue(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	bot, err := f.Chatbot()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	sel, err := bot.Continue(r.Context(), f.Session())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.writeFlow(w, f, map[string]any{"selection": sel})
}

// ManualToggle flips a career in the manual picker.
func (h *Handler) ManualToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeValid(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	m, err := f.Manual()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	selected, err := m.Toggle(req.CareerID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.writeFlow(w, f, map[string]any{"selected": selected})
}

// ManualProceed persists the manual selection.
func (h *Handler) ManualProceed(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	m, err := f.Manual()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	sel, err := m.Proceed(r.Context(), f.Session())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.writeFlow(w, f, map[string]any{"selection": sel})
}

// GetTest returns the current question.
func (h *Handler) GetTest(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	seq, err := f.Assessment()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, seq.View())
}

// AnswerTest selects an option for the current question.
func (h *Handler) AnswerTest(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeValid(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	seq, err := f.Assessment()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := seq.Select(req.Option); err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, seq.View())
}

// GetExplanation reveals the answer to the current question.
func (h *Handler) GetExplanation(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	seq, err := f.Assessment()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	ex, err := seq.Explanation()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, ex)
}

// NextQuestion advances the test, submitting it after the last question.
func (h *Handler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	seq, err := f.Assessment()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	out, err := seq.Next(r.Context(), f.Session())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.writeFlow(w, f, map[string]any{"outcome": out})
}

// SubmitTest retries the submission of the current test.
func (h *Handler) SubmitTest(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	seq, err := f.Assessment()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	out, err := seq.Submit(r.Context(), f.Session())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.writeFlow(w, f, map[string]any{"outcome": out})
}

// FinishFlow retries persisting the career ranking.
func (h *Handler) FinishFlow(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	pref, err := f.Finish(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.writeFlow(w, f, map[string]any{"preference": pref})
}

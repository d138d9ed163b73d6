package apiapp

import (
	"encoding/base64"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/phillip-england/navigator/internal/lawflow"
	"github.com/phillip-england/navigator/internal/paperwork"
	"github.com/phillip-england/navigator/internal/schema"
	"github.com/phillip-england/navigator/internal/timeline"
	"github.com/phillip-england/navigator/internal/wellness"
)

type immigrationRequest struct {
	Nationality string `json:"nationality"`
	CurrentVisa string `json:"current_visa"`
	TargetVisa  string `json:"target_visa"`
	Occupation  string `json:"occupation"`
	VisaType    string `json:"visa_type"`
	Stage       string `json:"stage"`
	Language    string `json:"language"`
}

// Field order is the order the page renders.
type immigrationResponse struct {
	Forms             []string  `json:"forms"`
	Steps             []string  `json:"steps"`
	Timeline          string    `json:"timeline"`
	Cost              string    `json:"cost"`
	Feedback          string    `json:"feedback"`
	VisaType          string    `json:"visa_type,omitempty"`
	CurrentStage      string    `json:"current_stage,omitempty"`
	NextSteps         *[]string `json:"next_steps,omitempty"`
	RequiredDocuments *[]string `json:"required_documents,omitempty"`
}

type fillFormRequest struct {
	Name         string `json:"name"`
	DOB          string `json:"dob"`
	Country      string `json:"country"`
	Relationship string `json:"relationship"`
	Photo        string `json:"photo"`
}

type wellnessRequest struct {
	Message  *string `json:"message"`
	Text     *string `json:"text"`
	Language string  `json:"language"`
}

type wellnessResponse struct {
	Score     float64 `json:"score"`
	Sentiment string  `json:"sentiment"`
	Advice    string  `json:"advice"`
	Response  string  `json:"response"`
}

type translateRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type translateResponse struct {
	Translation  string `json:"translation"`
	Language     string `json:"language,omitempty"`
	LanguageName string `json:"language_name,omitempty"`
}

type chatRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type timelineBody struct {
	Events []timeline.Event `json:"events"`
}

func (s *server) immigration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req immigrationRequest
	if !s.decodeBody(w, r, schema.Immigration, &req) {
		return
	}

	resp := immigrationResponse{
		Forms:    []string{"I-130", "I-765"},
		Steps:    []string{"Complete forms", "Submit fees"},
		Timeline: "6-12 months",
		Cost:     "$500-$1000",
		Feedback: "Eligibility check for " + req.TargetVisa,
	}
	if req.VisaType != "" && req.Stage != "" {
		resp.VisaType = req.VisaType
		resp.CurrentStage = req.Stage
		next := s.localize(s.catalog.NextSteps(req.VisaType, req.Stage), req.Language)
		docs := s.localize(s.catalog.RequiredDocuments(req.VisaType, req.Stage), req.Language)
		resp.NextSteps, resp.RequiredDocuments = &next, &docs
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) localize(lines []string, lang string) []string {
	if s.translator.IsEnglish(lang) {
		return lines
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = s.translator.Translate(line, lang, "en")
	}
	return out
}

func (s *server) fillForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req fillFormRequest
	if !s.decodeBody(w, r, schema.FillForm, &req) {
		return
	}

	form := paperwork.I130{
		Name:         strings.TrimSpace(req.Name),
		DOB:          strings.TrimSpace(req.DOB),
		Country:      strings.TrimSpace(req.Country),
		Relationship: strings.TrimSpace(req.Relationship),
	}
	if err := form.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Photo != "" {
		raw, _, err := paperwork.DecodeDataURL(req.Photo, paperwork.PhotoMimes, paperwork.MaxPhotoBytes)
		if err != nil {
			writeError(w, http.StatusBadRequest, "photo: "+err.Error())
			return
		}
		photo, err := paperwork.ProcessPhoto(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "photo: "+err.Error())
			return
		}
		form.Photo = photo
	}

	pdf, err := s.paperwork.Generate(r.Context(), form)
	if err != nil {
		if errors.Is(err, paperwork.ErrTemplatePhoto) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(w, r, "unable to generate form", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pdf_base64": base64.StdEncoding.EncodeToString(pdf)})
}

func (s *server) wellness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req wellnessRequest
	if !s.decodeBody(w, r, schema.Wellness, &req) {
		return
	}
	message := ""
	switch {
	case req.Message != nil:
		message = *req.Message
	case req.Text != nil:
		message = *req.Text
	}

	english := message
	if !s.translator.IsEnglish(req.Language) {
		english = s.translator.Translate(message, "en", req.Language)
	}
	reply := s.bot.Reply(english)
	if !s.translator.IsEnglish(req.Language) {
		reply = s.translator.Translate(reply, req.Language, "en")
	}

	score := wellness.Polarity(english)
	writeJSON(w, http.StatusOK, wellnessResponse{
		Score:     score,
		Sentiment: wellness.Label(score),
		Advice:    wellness.Advice(score),
		Response:  reply,
	})
}

func (s *server) wellnessGreeting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	lang := r.URL.Query().Get("language")
	opening := s.bot.Opening()
	if !s.translator.IsEnglish(lang) {
		opening = s.translator.Translate(opening, lang, "en")
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": opening})
}

func (s *server) translate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req translateRequest
	if !s.decodeBody(w, r, schema.Translate, &req) {
		return
	}
	resp := translateResponse{Translation: s.translator.TranslateFor(req.Text, req.Language)}
	if tag, ok := s.translator.Resolve(req.Language); ok {
		resp.Language = tag.String()
		resp.LanguageName = s.translator.DisplayName(req.Language)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req chatRequest
	if !s.decodeBody(w, r, schema.Chat, &req) {
		return
	}
	lang := "en"
	if tag, ok := s.translator.Resolve(req.Language); ok {
		base, _ := tag.Base()
		lang = base.String()
	}
	english := s.translator.IsEnglish(lang)
	toUser := func(text string) string {
		if english {
			return text
		}
		return s.translator.Translate(text, lang, "en")
	}

	intent, ok := s.intents.ParseIntent(req.Text, lang)
	var reply string
	switch intent {
	case "greet":
		reply = toUser(s.bot.Greeting())
	case "ask_mental_wellness", "get_help_mental":
		input := req.Text
		if !english {
			input = s.translator.Translate(req.Text, "en", lang)
		}
		reply = toUser(s.bot.Reply(input))
	case "check_visa_status", "ask_visa_types":
		reply = toUser("This query (intent: " + intent + ") would be handled by the immigration module. For example, try the /immigration endpoint for specific details.")
	case "farewell":
		reply = toUser("Goodbye! Take care.")
	default:
		reply = toUser("I'm not sure how to help with that. Can you try rephrasing?")
	}
	if !ok {
		intent = "unknown"
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply, "intent": intent})
}

func (s *server) timelineHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		events, err := s.events.ListEvents(r.Context())
		if err != nil {
			s.internalError(w, r, "unable to load timeline", err)
			return
		}
		writeJSON(w, http.StatusOK, timelineBody{Events: events})
	case http.MethodPut:
		var req timelineBody
		if !s.decodeBody(w, r, schema.Timeline, &req) {
			return
		}
		s.replaceTimeline(w, r, req.Events)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *server) timelineImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid upload form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "spreadsheet file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".xlsx" && ext != ".xls" && ext != ".xlsm" {
		writeError(w, http.StatusBadRequest, "spreadsheet must be .xlsx or .xls")
		return
	}
	events, err := timeline.ParseSpreadsheet(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.replaceTimeline(w, r, events)
}

func (s *server) replaceTimeline(w http.ResponseWriter, r *http.Request, events []timeline.Event) {
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, ev.Task+": "+err.Error())
			return
		}
	}
	if err := s.events.ReplaceEvents(r.Context(), events); err != nil {
		s.internalError(w, r, "unable to save timeline", err)
		return
	}
	s.logger.InfoContext(r.Context(), "timeline replaced", "events", len(events))
	if events == nil {
		events = []timeline.Event{}
	}
	writeJSON(w, http.StatusOK, timelineBody{Events: events})
}

func (s *server) visaTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		writeJSON(w, http.StatusOK, map[string][]string{"countries": s.catalog.CountryCodes()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"country":    strings.ToUpper(country),
		"visa_types": s.catalog.VisaTypes(country),
	})
}

func (s *server) visaStages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	visaType := strings.TrimSpace(r.URL.Query().Get("visa_type"))
	if visaType == "" {
		writeError(w, http.StatusBadRequest, "visa_type is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"visa_type": visaType,
		"stages":    s.catalog.VisaStages(visaType),
	})
}

func (s *server) documents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	if name := strings.TrimSpace(q.Get("name")); name != "" {
		details, err := s.catalog.DocumentDetails(name)
		if errors.Is(err, lawflow.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "Document details not found.")
			return
		}
		writeJSON(w, http.StatusOK, details)
		return
	}
	visaType, stage := strings.TrimSpace(q.Get("visa_type")), strings.TrimSpace(q.Get("stage"))
	if visaType == "" || stage == "" {
		writeError(w, http.StatusBadRequest, "name, or visa_type and stage, are required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"visa_type": visaType,
		"stage":     stage,
		"documents": s.catalog.RequiredDocuments(visaType, stage),
	})
}

package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/soilsense/soilsense/pkg/config"
	"github.com/soilsense/soilsense/pkg/models"
)

const systemPrompt = "You are an agricultural AI assistant specializing in precision farming. Provide concise, actionable advice based on sensor data."

// LLM asks an OpenAI-compatible chat completions endpoint for a suggestion.
type LLM struct {
	cfg     config.AdvisorConfig
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewLLM creates an LLM generator. RequestsPerMinute of zero disables rate limiting.
func NewLLM(cfg config.AdvisorConfig) *LLM {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &LLM{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

// Name returns the configured backend name, used as the model tag.
func (l *LLM) Name() string {
	if l.cfg.Name == "" {
		return "llm"
	}
	return l.cfg.Name
}

// Generate sends one chat completion request and normalizes the reply.
func (l *LLM) Generate(ctx context.Context, reading models.SensorReading, plantType string) (Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Result{}, generationError(l.Name(), fmt.Errorf("rate limit: %w", err))
	}

	content, err := l.complete(ctx, buildPrompt(reading, plantType, l.now()))
	if err != nil {
		return Result{}, generationError(l.Name(), err)
	}

	s, err := parseSuggestion(content)
	if err != nil {
		return Result{}, generationError(l.Name(), err)
	}
	return Result{Suggestion: s, Model: l.Name()}, nil
}

func (l *LLM) complete(ctx context.Context, prompt string) (string, error) {
	temperature := l.cfg.Temperature
	maxTokens := l.cfg.MaxTokens
	body, err := json.Marshal(models.ChatCompletionRequest{
		Model: l.cfg.Model,
		Messages: []models.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(l.cfg.URL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upstream status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var completion models.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", errors.New("empty response from model")
	}
	return completion.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func formatValue(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func buildPrompt(r models.SensorReading, plantType string, now time.Time) string {
	age := "unknown"
	if !r.Timestamp.IsZero() {
		age = strconv.FormatInt(int64(now.Sub(r.Timestamp)/time.Minute), 10)
	}

	var b strings.Builder
	b.WriteString("Analyze this agricultural sensor data and provide watering/fertilizing recommendations:\n\n")
	fmt.Fprintf(&b, "PLANT TYPE: %s\n", plantType)
	fmt.Fprintf(&b, "DATA AGE: %s minutes old\n\n", age)
	b.WriteString("SENSOR READINGS:\n")
	fmt.Fprintf(&b, "- Temperature: %s°C\n", formatValue(r.Temperature))
	fmt.Fprintf(&b, "- Soil Moisture: %s%%\n", formatValue(r.Moisture))
	fmt.Fprintf(&b, "- pH Level: %s\n", formatValue(r.PH))
	fmt.Fprintf(&b, "- Conductivity: %s mS/cm\n", formatValue(r.Conductivity))
	fmt.Fprintf(&b, "- Nitrogen (N): %s ppm\n", formatValue(r.Nitrogen))
	fmt.Fprintf(&b, "- Phosphorus (P): %s ppm\n", formatValue(r.Phosphorus))
	fmt.Fprintf(&b, "- Potassium (K): %s ppm\n\n", formatValue(r.Potassium))
	b.WriteString(responseFormat)
	return b.String()
}

const responseFormat = `Please respond with EXACTLY this JSON format (no additional text):
{
  "watering": {
    "recommendation": "now|soon|later|not_needed",
    "hoursUntilNext": number (0 for "now", 1-4 for "soon", 6-24 for "later", 24-72 for "not_needed"),
    "reason": "brief explanation",
    "urgency": "low|medium|high"
  },
  "fertilizing": {
    "recommendation": "now|soon|later|not_needed",
    "daysUntilNext": number (0 for "now", 1-3 for "soon", 3-14 for "later", 14+ for "not_needed"),
    "reason": "brief explanation (critical deficiency <5ppm P, <10ppm N, <30ppm K requires immediate action)",
    "type": "nitrogen|phosphorus|potassium|balanced|none"
  },
  "plantHealth": {
    "score": number_0_to_100,
    "status": "excellent|good|fair|poor|critical",
    "concerns": ["list", "of", "issues"]
  }
}`

// rawSuggestion mirrors the requested JSON loosely so partial replies still decode.
type rawSuggestion struct {
	Watering struct {
		Recommendation string   `json:"recommendation"`
		HoursUntilNext *float64 `json:"hoursUntilNext"`
		Reason         string   `json:"reason"`
		Urgency        string   `json:"urgency"`
	} `json:"watering"`
	Fertilizing struct {
		Recommendation string   `json:"recommendation"`
		DaysUntilNext  *float64 `json:"daysUntilNext"`
		Reason         string   `json:"reason"`
		Type           string   `json:"type"`
		Urgency        string   `json:"urgency"`
	} `json:"fertilizing"`
	PlantHealth struct {
		Score    *float64        `json:"score"`
		Status   string          `json:"status"`
		Concerns json.RawMessage `json:"concerns"`
	} `json:"plantHealth"`
}

// parseSuggestion extracts the outermost JSON object from content and
// normalizes it into a valid Suggestion.
func parseSuggestion(content string) (models.Suggestion, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return models.Suggestion{}, errors.New("no JSON object in model response")
	}

	var raw rawSuggestion
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return models.Suggestion{}, fmt.Errorf("decode model response: %w", err)
	}

	s := models.Suggestion{
		Watering:    normalizeWatering(raw),
		Fertilizing: normalizeFertilizing(raw),
		PlantHealth: normalizeHealth(raw),
	}
	if err := s.Validate(); err != nil {
		return models.Suggestion{}, err
	}
	return s, nil
}

func positive(v *float64) (int, bool) {
	if v == nil || *v <= 0 {
		return 0, false
	}
	return int(*v), true
}

func normalizeWatering(raw rawSuggestion) models.WateringAdvice {
	w := raw.Watering
	given, ok := positive(w.HoursUntilNext)

	rec := models.Recommendation(w.Recommendation)
	hours := 24
	switch rec {
	case models.RecommendNow:
		hours = 0
	case models.RecommendSoon:
		hours = 2
		if ok && given <= 4 {
			hours = given
		}
	case models.RecommendLater:
		hours = 12
		if ok && given >= 6 && given <= 24 {
			hours = given
		}
	case models.RecommendNotNeeded:
		hours = 48
		if ok && given >= models.WateringHorizonHours {
			hours = given
		}
	default:
		rec = models.RecommendLater
	}

	urgency := models.Urgency(w.Urgency)
	switch urgency {
	case models.UrgencyLow, models.UrgencyMedium, models.UrgencyHigh:
	default:
		urgency = models.UrgencyMedium
	}

	return models.WateringAdvice{
		Recommendation: rec,
		HoursUntilNext: hours,
		Reason:         orDefault(w.Reason, "Based on current conditions"),
		Urgency:        urgency,
	}
}

func normalizeFertilizing(raw rawSuggestion) models.FertilizingAdvice {
	f := raw.Fertilizing
	given, ok := positive(f.DaysUntilNext)

	rec := models.Recommendation(f.Recommendation)
	var days int
	switch rec {
	case models.RecommendNow:
		days = 0
	case models.RecommendSoon:
		days = 2
		if ok && given <= 3 {
			days = given
		}
	case models.RecommendNotNeeded:
		days = 30
		if ok && given >= models.FertilizingHorizonDays {
			days = given
		}
	default:
		rec = models.RecommendLater
		days = 7
		if ok && given >= 3 && given <= models.FertilizingHorizonDays {
			days = given
		}
	}

	nutrient := models.NutrientType(f.Type)
	switch nutrient {
	case models.NutrientNitrogen, models.NutrientPhosphorus, models.NutrientPotassium, models.NutrientBalanced, models.NutrientNone:
	default:
		nutrient = models.NutrientBalanced
	}

	urgency := models.Urgency(f.Urgency)
	switch urgency {
	case models.UrgencyLow, models.UrgencyMedium, models.UrgencyHigh, models.UrgencyCritical:
	default:
		urgency = models.UrgencyLow
	}

	return models.FertilizingAdvice{
		Recommendation: rec,
		DaysUntilNext:  days,
		Reason:         orDefault(f.Reason, "Nutrient levels stable"),
		Type:           nutrient,
		Urgency:        urgency,
	}
}

func normalizeHealth(raw rawSuggestion) models.PlantHealth {
	h := raw.PlantHealth

	score := 70
	if h.Score != nil && *h.Score != 0 {
		score = models.ClampScore(int(*h.Score))
	}

	status := models.HealthStatus(h.Status)
	switch status {
	case models.HealthExcellent, models.HealthGood, models.HealthFair, models.HealthPoor, models.HealthCritical:
	case "":
		status = models.HealthFair
	default:
		status = models.StatusForScore(score)
	}

	concerns := []string{}
	if len(h.Concerns) > 0 {
		var list []string
		if err := json.Unmarshal(h.Concerns, &list); err == nil && list != nil {
			concerns = list
		}
	}

	return models.PlantHealth{Score: score, Status: status, Concerns: concerns}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

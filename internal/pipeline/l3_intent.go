package pipeline

import (
	"context"
	"fmt"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/domain/stage"
	"github.com/kellogg/sentrychat/internal/infrastructure/llm"
)

// intentSystemPrompt mirrors Layer3IntentParser.DEFAULT_SYSTEM_PROMPT (§4.4):
// a slightly larger router model extracts topic, question type, entities,
// tone, and confidence as JSON.
const intentSystemPrompt = `You are an intent parser for a portfolio chat system about Kellogg, a software engineer.

Parse the user's message and extract structured intent information.

VALID TOPICS (choose the most specific that applies):
- work_experience, skills, projects, hobbies, philosophy, contact, message, chat_system, general, greeting

QUESTION TYPES:
- factual, experience, opinion, comparison, procedural, clarification, greeting, ambiguous, action

EMOTIONAL TONES:
- neutral, curious, professional, casual, skeptical, enthusiastic

OUTPUT FORMAT (JSON only):
{"topic": "...", "question_type": "...", "entities": ["..."], "emotional_tone": "...", "confidence": 0.0}`

type intentResponse struct {
	Topic        string   `json:"topic"`
	QuestionType string   `json:"question_type"`
	Entities     []string `json:"entities"`
	Tone         string   `json:"emotional_tone"`
	Confidence   float64  `json:"confidence"`
}

var validTopics = map[entity.Topic]bool{
	entity.TopicWorkExperience: true, entity.TopicSkills: true, entity.TopicProjects: true,
	entity.TopicHobbies: true, entity.TopicPhilosophy: true, entity.TopicContact: true,
	entity.TopicMessage: true, entity.TopicChatSystem: true, entity.TopicGeneral: true,
	entity.TopicGreeting: true,
}

var validQuestionTypes = map[entity.QuestionType]bool{
	entity.QuestionFactual: true, entity.QuestionExperience: true, entity.QuestionOpinion: true,
	entity.QuestionComparison: true, entity.QuestionProcedural: true, entity.QuestionClarification: true,
	entity.QuestionGreeting: true, entity.QuestionAmbiguous: true, entity.QuestionAction: true,
}

var validTones = map[entity.EmotionalTone]bool{
	entity.ToneNeutral: true, entity.ToneCurious: true, entity.ToneProfessional: true,
	entity.ToneCasual: true, entity.ToneSkeptical: true, entity.ToneEnthusiastic: true,
}

// IntentParser is L3: extracts a structured Intent via a JSON-constrained
// chat call (§4.4). Grounded on layer3_intent.py.
type IntentParser struct {
	client llm.Client
	model  string
}

func NewIntentParser(client llm.Client, model string) *IntentParser {
	return &IntentParser{client: client, model: model}
}

// Parse extracts intent from a sanitized message. Unrecognized enum values
// degrade to ambiguous/neutral rather than failing the stage; model/transport
// failures degrade to a default ambiguous intent and still pass, letting
// routing decide (§4.4).
func (p *IntentParser) Parse(ctx context.Context, message string) L3Result {
	var resp intentResponse
	err := p.client.ChatJSON(ctx, llm.ChatRequest{
		Model: p.model,
		Messages: []llm.Message{
			{Role: "system", Content: intentSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Parse the intent of this message:\n\n%s", message)},
		},
	}, &resp)
	if err != nil {
		return L3Result{
			Result: stage.Passed(StatusL3Error),
			Intent: entity.Intent{Topic: entity.TopicGeneral, QuestionType: entity.QuestionAmbiguous, Tone: entity.ToneNeutral},
		}
	}

	topic := entity.Topic(resp.Topic)
	if !validTopics[topic] {
		topic = entity.TopicGeneral
	}
	qType := entity.QuestionType(resp.QuestionType)
	if !validQuestionTypes[qType] {
		qType = entity.QuestionAmbiguous
	}
	tone := entity.EmotionalTone(resp.Tone)
	if !validTones[tone] {
		tone = entity.ToneNeutral
	}

	intent := entity.Intent{
		Topic:        topic,
		QuestionType: qType,
		Entities:     resp.Entities,
		Tone:         tone,
		Confidence:   resp.Confidence,
	}
	intent.ClampConfidence()

	if qType == entity.QuestionAmbiguous || intent.Confidence < 0.3 {
		return L3Result{Result: stage.Passed(StatusL3Ambiguous), Intent: intent}
	}
	return L3Result{Result: stage.Passed(StatusL3Parsed), Intent: intent}
}

package conversation

import (
	"fmt"
	"strings"
)

const (
	ContextJobInterview = "job_interview"
	ContextAirport      = "airport"
)

const (
	jobInterviewPersona = "Você é um entrevistador profissional conduzindo uma entrevista de emprego. " +
		"Responda de forma direta, profissional e natural, como um entrevistador real, " +
		"focando em perguntas ou respostas relevantes à entrevista, como currículo, habilidades ou experiências. " +
		"Evite saudações genéricas, apresentações ou frases desnecessárias."

	airportPersona = "Você é um funcionário de um aeroporto ajudando um passageiro. " +
		"Responda de forma clara, útil e natural, como um atendente real, " +
		"sobre voos, check-in, bagagem, segurança ou navegação no aeroporto. " +
		"Evite saudações genéricas ou frases desnecessárias."

	customPersonaFormat = "Você está respondendo em um contexto personalizado: %s. " +
		"Responda de forma direta, natural e relevante ao contexto fornecido, " +
		"evitando saudações genéricas, apresentações ou frases desnecessárias."

	noGreetingInstruction = "Instruções adicionais: Responda de forma concisa, simulando uma interação real no contexto especificado. " +
		"Não inclua saudações como 'Olá', 'Prazer em conhecê-lo' ou frases genéricas de apresentação, " +
		"a menos que explicitamente solicitado. Mantenha o foco na pergunta ou no diálogo atual."
)

type PromptInput struct {
	Text     string
	Language string
	Context  string
	History  string
}

func languageInstruction(language string) string {
	if strings.EqualFold(strings.TrimSpace(language), "pt") {
		return "Responda em português"
	}
	return "Respond in English"
}

// persona picks the fixed description for a known context tag; any other
// value is embedded verbatim.
func persona(context string) string {
	switch context {
	case ContextJobInterview:
		return jobInterviewPersona
	case ContextAirport:
		return airportPersona
	default:
		return fmt.Sprintf(customPersonaFormat, context)
	}
}

func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString(languageInstruction(in.Language))
	b.WriteString(". ")
	b.WriteString(persona(in.Context))
	b.WriteString("\n\n")
	b.WriteString(noGreetingInstruction)
	b.WriteString("\n\n")
	b.WriteString("Histórico da conversa:\n")
	b.WriteString(in.History)
	b.WriteString("\n\n")
	b.WriteString("Pergunta ou diálogo atual: ")
	b.WriteString(in.Text)
	return b.String()
}

package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/islamcheck/internal/model"
)

// systemInstruction is prepended to every claim. The upstream model answers
// with a dict-like literal that ParseAnalysis understands.
var systemInstruction = fmt.Sprintf(`You are a knowledgeable Islamic scholar and fact-checker.
Analyze the following claim about Islam, providing:
1. Full context with relevant Quranic verses or hadiths
2. Citations from classical scholars
3. Perspectives from Western academics
4. A clear classification (%s)
Return your response in this exact JSON format:
{
    "answer": "Your detailed analysis here",
    "sources": ["source1", "source2", "source3"],
    "classification": "one of: %s"
}`, joinClassifications("/"), joinClassifications(", "))

// BuildPrompt embeds the claim after the fixed system instruction
func BuildPrompt(claim string) string {
	return systemInstruction + "\n" + "Claim to analyze: " + claim
}

func joinClassifications(sep string) string {
	labels := make([]string, len(model.Classifications))
	for i, c := range model.Classifications {
		labels[i] = string(c)
	}
	return strings.Join(labels, sep)
}

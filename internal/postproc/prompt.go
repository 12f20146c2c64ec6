package postproc

import (
	"fmt"
	"strings"
)

// buildSystemPrompt assembles the cleanup instructions for the model.
func buildSystemPrompt(cfg Config) string {
	var tasks []string
	if cfg.FixGrammar {
		tasks = append(tasks, "Fix grammar and obvious transcription mistakes")
	}
	if cfg.RemoveFillers {
		tasks = append(tasks, "Remove filler words (um, uh, like, you know)")
	}
	if len(tasks) == 0 {
		tasks = append(tasks, "Clean up the text while preserving its meaning")
	}

	var b strings.Builder
	b.WriteString("You are a transcript cleanup assistant. You receive raw speech-to-text output and return a polished version.\n\n")
	b.WriteString("Tasks:\n")
	for _, task := range tasks {
		fmt.Fprintf(&b, "- %s\n", task)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Preserve the original meaning and intent\n")
	b.WriteString("- Keep the same language as the input\n")
	b.WriteString("- Do not add information that is not in the input\n")
	b.WriteString("- Output ONLY the polished text, nothing else\n")

	if len(cfg.Keywords) > 0 {
		fmt.Fprintf(&b, "\nThese terms appear in the audio, spell them exactly like this: %s\n", strings.Join(cfg.Keywords, ", "))
	}
	return b.String()
}

// buildUserPrompt prepends the user's extra instructions when set.
func buildUserPrompt(transcript, custom string) string {
	if custom == "" {
		return transcript
	}
	return fmt.Sprintf("%s\n\nTranscript:\n%s", custom, transcript)
}

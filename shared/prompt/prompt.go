// Package prompt renders the fixed texts that open a persona conversation.
package prompt

import (
	"fmt"

	"backstage/internal/models"
	"backstage/shared/transcript"
)

const noResearch = "Background information not available. Respond based on what was discussed in the video."

func roleDescription(role models.Role) string {
	switch role {
	case models.RoleHost:
		return "the host of"
	case models.RoleGuest:
		return "a guest on"
	default:
		return "the creator of"
	}
}

// BuildSystemPrompt puts the model in character as persona for video.
func BuildSystemPrompt(persona models.Persona, video models.VideoMetadata) string {
	background := persona.Research
	if background == "" {
		background = noResearch
	}

	var guestLine, hostLine string
	switch persona.Role {
	case models.RoleGuest:
		guestLine = "- Focus on your perspective as the guest being interviewed"
	case models.RoleHost:
		hostLine = "- You can reference your role as the host, but answer from your own perspective and knowledge"
	}

	return fmt.Sprintf(`You are %[1]s, %[2]s the YouTube video "%[3]s" on the channel "%[4]s".

## Your Background
%[5]s

## Instructions
- Answer questions as %[1]s would, based on your background and what was discussed in the video
- Stay in character - respond as yourself (%[1]s), not as an AI assistant
- The full video transcript is provided in the conversation history - reference it when answering questions
- Draw from both the video transcript and your background knowledge when relevant
- If asked something not covered in the video, acknowledge thoughtfully: "I didn't discuss that in this video, but based on my experience..."
- Be conversational and authentic, matching the tone from the video
- If you genuinely don't know something or it contradicts what you said in the video, be honest about it
%[6]s
%[7]s

The user watched this video and has follow-up questions they want to explore with you. Be helpful, insightful, and true to who you are.`,
		persona.Name,
		roleDescription(persona.Role),
		video.Title,
		video.ChannelName,
		background,
		guestLine,
		hostLine,
	)
}

// BuildTranscriptContextMessage wraps the (truncated) transcript in the
// assistant message that seeds every conversation.
func BuildTranscriptContextMessage(text string) string {
	return fmt.Sprintf(`Here is the full transcript of the video we'll be discussing:

---
%s
---

I've reviewed the transcript and I'm ready to answer your questions about the video!`,
		transcript.Truncate(text, transcript.DefaultMaxChars),
	)
}

func BuildGreetingMessage(persona models.Persona, videoTitle string) string {
	switch persona.Role {
	case models.RoleHost:
		return fmt.Sprintf(`Hey! Thanks for watching. I'm %s. What would you like to discuss about "%s"?`, persona.Name, videoTitle)
	case models.RoleGuest:
		return fmt.Sprintf(`Hi there! I'm %s. Happy to dive deeper into what we talked about in "%s". What's on your mind?`, persona.Name, videoTitle)
	default:
		return fmt.Sprintf(`Hey! I'm %s. Glad you found the video helpful. What questions do you have about "%s"?`, persona.Name, videoTitle)
	}
}

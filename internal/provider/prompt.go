package provider

import "strings"

const analysisPrompt = `You are an expert at analyzing online community discussions and extracting key insights.
Analyze the following post and its comments to extract tags and provide a concise discussion summary.
Focus on the main themes, topics, opinions, and any significant points raised in the discussion.

Post Content:
{post_content}

Respond with a single JSON object and nothing else, in this format:
{
    "tags": ["tag1", "tag2", "tag3"],
    "discussion_summary": "concise summary of the discussion"
}

Requirements for the analysis:
- 3 to 7 relevant topic tags, specific but not too narrow
- The discussion summary is 2-3 sentences capturing key points and overall sentiment
- All text fields must be in English`

func buildPrompt(renderedText string) string {
	return strings.Replace(analysisPrompt, "{post_content}", renderedText, 1)
}

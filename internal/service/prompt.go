package service

import "fmt"

const systemPrompt = `You are an expert HR professional evaluating CVs for job positions.
Analyze the provided CV text against the job requirements and provide a detailed evaluation.

Return your response as a JSON object with the following structure:
{
  "score": <number between 0-100>,
  "rationale": "<detailed explanation of the evaluation>",
  "matches": ["<skill1>", "<skill2>", ...],
  "gaps": ["<missing requirement1>", "<missing requirement2>", ...]
}

Be specific and provide actionable feedback.`

func buildUserMessage(cvText, prompt string) string {
	return fmt.Sprintf(`Job Requirements: %s

CV Content:
%s

Please evaluate this CV against the job requirements.`, prompt, cvText)
}

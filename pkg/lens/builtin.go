package lens

import "synthdlg/pkg/contract"

// 内置 lens 定义。
// dialogue 模板承袭原始实验的师生式扎根对话脚手架（含热身示例与
// “不得直接提及 passage” 约束）；其余为常用的再表述形状。
var builtins = []contract.Lens{
	{
		Name:     "dialogue",
		Template: dialogueTemplate,
		Shape:    contract.ShapeDialogue,
		RoleMap:  contract.RoleMap{"Student": contract.RoleUser, "Teacher": contract.RoleAssistant},
		Params:   contract.GenParams{Temperature: f(0.8), MaxOutputTokens: 512},
	},
	{
		Name:     "lecture",
		Template: lectureTemplate,
		Shape:    contract.ShapeLecture,
		RoleMap:  contract.RoleMap{"Student": contract.RoleUser, "Teacher": contract.RoleAssistant},
		Params:   contract.GenParams{Temperature: f(0.7), MaxOutputTokens: 768},
	},
	{
		Name:     "summary",
		Template: summaryTemplate,
		Shape:    contract.ShapeSummary,
		Params:   contract.GenParams{Temperature: f(0.3), MaxOutputTokens: 256},
	},
	{
		Name:     "bullets",
		Template: bulletsTemplate,
		Shape:    contract.ShapeBullets,
		Params:   contract.GenParams{Temperature: f(0.3), MaxOutputTokens: 256},
	},
}

func f(v float64) *float64 { return &v }

const dialogueTemplate = `Please read the following text, and simulate a dialog between a Student and Teacher. The Student asks intelligent questions, covering all the important knowledge from the passage. The Teacher gives long and thoughtful answers. They should not talk about the passage directly. They should have a dialog where the content of their communication is grounded in the passage.

Every turn MUST start on its own line with the speaker label in square brackets, like this:

[Student] Please tell me about On Proper Functions (De Officiis).

[Teacher] This was a philosophical work written by Cicero during the Roman period. While Cicero never identified as a Stoic himself, he engaged with the theory extensively in this work, which was modeled on Panaetius' treatise of the same name.

Ground the discussion in facts from the passage, quote material where helpful, and never mention the passage itself. Begin with the Student.

Context:

{{.Title}}

Passage:

{{.Chunk}}`

const lectureTemplate = `Please read the following text. Simulate a Student asking one broad, open-ended question, followed by a Teacher delivering a long, detailed lecture that covers all the material, occasionally quoting it. Every turn MUST start on its own line with its label in square brackets: [Student] or [Teacher]. Never mention the passage directly; present the information as a lesson grounded in it. Begin with the Student.

Context:

{{.Title}}

Passage:

{{.Chunk}}`

const summaryTemplate = `Read the following passage and write a single self-contained paragraph that summarizes it faithfully. Do not mention the passage, the author, or the act of summarizing; state the information directly. Output the paragraph only.

Context:

{{.Title}}

Passage:

{{.Chunk}}`

const bulletsTemplate = `Read the following passage and restate its key facts as a bullet list. Each bullet starts with "- " on its own line, states one fact grounded in the passage, and never refers to the passage itself. Output at least two bullets and nothing else.

Context:

{{.Title}}

Passage:

{{.Chunk}}`

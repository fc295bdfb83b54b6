package assist

const interpretPrompt = `You help authors set up prompt drafts.
Read the user's description and return:
- topic: a short title for the subject (at most 8 words)
- positive: keywords the generated text should emphasize
- negative: keywords the generated text should avoid
Each keyword is one to three words. weight is 0-5 where 5 matters most.
Return at most %d keywords per list, most important first. Do not repeat a keyword within a list.`

const augmentPrompt = `You extend keyword lists for prompt drafts.
The user message is JSON with the topic, the list to extend ("polarity") and the current positive and negative keywords.
Suggest up to %d new %s keywords that fit the topic.
Never repeat a keyword that is already in either list. Each keyword is one to three words. weight is 0-5 where 5 matters most.`

const generatePrompt = `You write the text a prompt draft asks for.
The user message is the draft in markdown. Follow its body and instructions.
Give extra attention to the keywords under "Emphasize" in proportion to their weight and stay away from those under "Avoid".
Return only the generated text.`

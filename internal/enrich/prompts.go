package enrich

// LLM prompt templates. Every prompt demands raw JSON with no fences so
// the shared fence stripping plus json.Unmarshal round-trips cleanly.

const sentimentPrompt = `Score the sentiment of each item below on a scale from -1.0 (very negative) to 1.0 (very positive). 0.0 is neutral.

Items (one per line, [id] text):
%s
Respond with ONLY a JSON array, no markdown, no explanations:
[{"id": "<item id>", "score": <number between -1.0 and 1.0>}, ...]

Include every item exactly once.`

const triplesPrompt = `Extract factual (subject, predicate, object) relation triples from each item below. Only extract claims actually stated in the text. Skip items with no extractable facts.

Items (one per line, [id] text):
%s
Respond with ONLY a JSON array, no markdown, no explanations:
[{"id": "<item id>", "subject": "...", "predicate": "...", "object": "...", "confidence": <0.0-1.0>}, ...]

An item may produce zero, one, or several triples.`

const topicsPrompt = `Identify up to %d distinct topics discussed across the items below. For each topic give a short label (2-5 words), up to 8 keywords, the ids of up to 3 items that best represent it, and a relevance score 0.0-1.0 reflecting how much of the content it covers.

Items (one per line, [id] text):
%s
Respond with ONLY a JSON array, no markdown, no explanations:
[{"label": "...", "keywords": ["...", ...], "item_ids": ["...", ...], "relevance": <0.0-1.0>}, ...]`

const summaryPrompt = `Summarize the following %s content from a single YouTube video. Capture what it covers, the main claims or discussion points, and the overall tone.

Content:
%s
Respond with ONLY a JSON object, no markdown, no explanations:
{"summary": "<3-6 sentences>", "key_themes": ["...", ...], "tone": "<one or two words>"}`

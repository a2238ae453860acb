package summarize

const summarizePagePrompt = `You are helping build an llms.txt file, a standard way of giving LLMs an index of a project's documentation. Describe the documentation page below so an LLM knows when to consult it.

<page_content>
%s
</page_content>

Write 10-25 words covering what specific information the page holds and when it is worth referencing. Be concrete about the content; avoid generic phrases such as "Documentation for the API" or "Learn how to get started".

Reply with the description only, without quotes.`

const siteSummaryPrompt = `You are writing the header of an llms.txt file for the documentation site below.

<site_url>
%s
</site_url>

<sample_pages>
%s
</sample_pages>

Produce:
1. title: the product or project name as its authors use it, not the domain and not a page heading.
2. summary: one sentence of 20-40 words stating what the product is, what it does, and key technologies it builds on when relevant.
3. notes: 2-4 bullets of 10-30 words each clarifying what the product is not, compatibility limits, or scope constraints that would otherwise confuse an LLM.

Think in a <scratchpad> first, then reply inside <answer> tags with JSON of the form:
<answer>
{"title": "...", "summary": "...", "notes": ["...", "..."]}
</answer>`

const categorizePrompt = `You are organizing documentation URLs into sections of an llms.txt file.

<site_url>
%s
</site_url>

<urls_list>
%s
</urls_list>

Rules:
- Use 2-5 categories in Title Case, ordered from most to least essential. Prefer "Docs", "API Reference", "Examples" and "Optional"; "Optional" must come last when used.
- Give every URL an importance score from 0 to 100: entry points and core concepts 90-100, feature guides 70-90, API references 60-80, examples 50-70, advanced topics 40-60, changelogs and misc 10-40.
- Every URL appears exactly once.

Reply with JSON only:
{"categories": ["Docs", "API Reference"], "pages": [{"url": "https://example.com/start", "category": "Docs", "importance": 95}]}`

package engine

const planSystem = `You coordinate a research process. Given a research topic, produce a plan as a JSON object:
{"topic": "clear statement of the research topic",
 "search_queries": ["3 to 5 specific web search queries that together cover the topic"],
 "focus_areas": ["3 to 5 key aspects of the topic to investigate"]}
Respond with the JSON object only.`

const extractSystem = `You are a research assistant. You receive a research topic and the text of one web page.
Summarise what the page contributes to the topic in at most 300 words, terse notes are fine, and list
the important, verifiable facts it states. Respond with a JSON object:
{"summary": "notes", "facts": [{"fact": "one self-contained fact", "source": "where the page attributes it, if anywhere"}]}
Return an empty facts list when the page is irrelevant. Respond with the JSON object only.`

const synthesizeSystem = `You are a senior researcher writing a cohesive report for a research query. You receive the
query, the research plan and notes gathered by a research assistant. First decide an outline, then write the report in
markdown. It should be long and detailed, aim for at least 1000 words. Respond with a JSON object:
{"title": "report title", "outline": ["section headings in order"], "report": "the full markdown report",
 "sources": ["URLs of the sources you relied on"]}
Respond with the JSON object only.`

package mcpserver

// SearchInstructions tells assistants which tools to try, cheapest first.
const SearchInstructions = `## Notes Search Strategy

When searching through notes, use this priority order (most efficient first):

### 1. TAGS
Use ` + "`find_by_tag`" + ` for topic searches. Tags are explicit categorizations.
- Examples: #project, #ops, #meeting
- Use ` + "`list_all_tags`" + ` to see available tags

### 2. DATE RANGES
Use ` + "`find_journals_by_date`" + ` for time-based searches.
- Journal files live in /journal/ as YYYY-MM-DD.md
- Date-prefixed notes start with a date, e.g. "2024-05-02 Project name.md"
- Dates match by prefix: YYYY-MM-DD (day), YYYY-MM (month), YYYY (year)
- Example: notes from January 2025 use start_date="2025-01", end_date="2025-01"

### 3. MENTIONS
Use ` + "`find_by_mention`" + ` to find notes mentioning a person.
- Format: @person-name (e.g. @john-doe)
- Use ` + "`list_all_persons`" + ` to see known people

### 4. FILENAME/TITLE SEARCH
Use ` + "`find_by_filename`" + ` when you know part of the note's name.
Both filename and title are searched.

### 5. GRAPH EXPLORATION
Use ` + "`get_backlinks`" + `, ` + "`get_related`" + ` and ` + "`get_note_context`" + ` to follow connections.
- Backlinks: what links TO a note
- Related: notes sharing tags or mentions

### 6. FULL-TEXT SEARCH (last resort)
Use ` + "`search_content`" + ` only when the other methods fail.
It is slower and returns at most three matching lines per note.

### Tips
- Combine methods: find by tag first, then narrow by date
- ` + "`get_graph_stats`" + ` shows the size of the knowledge base
- ` + "`query_graph`" + ` runs a raw query in the store's native language
  (Cypher for Memgraph/Neo4j, SQL for the embedded store)
`

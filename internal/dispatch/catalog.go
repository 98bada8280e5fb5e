package dispatch

import (
	"github.com/capitalize-ai/assistant-engine/internal/llm"
)

// CatalogVersion identifies the function catalog offered to the model.
// Bump it whenever a name, parameter or description changes.
const CatalogVersion = "2026.10.2"

type param map[string]any

func str(desc string) param     { return param{"type": "string", "description": desc} }
func integer(desc string) param { return param{"type": "integer", "description": desc} }
func boolean(desc string) param { return param{"type": "boolean", "description": desc} }

func stringList(desc string) param {
	return param{"type": "array", "items": param{"type": "string"}, "description": desc}
}

var confirmedParam = boolean("Set to true only after the user explicitly confirmed this action.")

func function(name, desc string, props map[string]param, required ...string) llm.FunctionDef {
	properties := make(map[string]any, len(props))
	for k, v := range props {
		properties[k] = map[string]any(v)
	}
	if required == nil {
		required = []string{}
	}
	return llm.FunctionDef{
		Name:        name,
		Description: desc,
		Parameters: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// Catalog returns the functions the model may call. The result is freshly
// allocated on every call.
func Catalog() []llm.FunctionDef {
	return []llm.FunctionDef{
		// Calendar
		function("get_calendar_events",
			"Get calendar events for a date range. Resolve relative dates like 'tomorrow' from the current date in the system prompt.",
			map[string]param{
				"start_date": str("Start date, YYYY-MM-DD. Defaults to today."),
				"end_date":   str("End date, YYYY-MM-DD. Defaults to the end of start_date."),
			}),
		function("create_calendar_event",
			"Create a calendar event. Overlapping events are reported as warnings.",
			map[string]param{
				"title":       str("Event title"),
				"start_time":  str("Start, YYYY-MM-DDTHH:MM:SS"),
				"end_time":    str("End, YYYY-MM-DDTHH:MM:SS. Defaults to one hour after start."),
				"description": str("Optional description"),
				"location":    str("Optional location"),
			}, "title", "start_time"),
		function("update_calendar_event",
			"Change an existing calendar event. Only the given fields are updated.",
			map[string]param{
				"event_id":    integer("ID of the event"),
				"title":       str("New title"),
				"start_time":  str("New start, YYYY-MM-DDTHH:MM:SS"),
				"end_time":    str("New end, YYYY-MM-DDTHH:MM:SS"),
				"description": str("New description"),
				"location":    str("New location"),
			}, "event_id"),
		function("delete_calendar_event",
			"Delete a calendar event. Requires confirmation.",
			map[string]param{
				"event_id":  integer("ID of the event"),
				"confirmed": confirmedParam,
			}, "event_id"),
		function("find_free_slot",
			"Find the next free time slot of the given length.",
			map[string]param{
				"duration_minutes": integer("Length of the slot in minutes"),
				"start_from":       str("Earliest start, YYYY-MM-DDTHH:MM:SS. Defaults to now."),
			}, "duration_minutes"),

		// Tasks
		function("get_tasks",
			"Get the user's tasks.",
			map[string]param{
				"include_completed": boolean("Whether to include completed tasks"),
			}),
		function("create_task",
			"Create a task or reminder.",
			map[string]param{
				"title":    str("Task title"),
				"notes":    str("Optional notes"),
				"due_date": str("Optional due date, YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS"),
				"priority": integer("Priority from 1 (highest) to 5. Defaults to 3."),
			}, "title"),
		function("complete_task",
			"Mark a task as completed. Requires confirmation.",
			map[string]param{
				"task_id":   integer("ID of the task"),
				"confirmed": confirmedParam,
			}, "task_id"),
		function("delete_task",
			"Delete a task. Requires confirmation.",
			map[string]param{
				"task_id":   integer("ID of the task"),
				"confirmed": confirmedParam,
			}, "task_id"),

		// Email
		function("draft_email",
			"Draft an email. Nothing is sent until send_email is confirmed.",
			map[string]param{
				"to":      str("Recipient address"),
				"subject": str("Subject line"),
				"body":    str("Plain text body"),
				"cc":      str("Optional CC addresses, comma separated"),
				"mailbox": param{"type": "string", "enum": []string{"personal", "university", "work"}, "description": "Sending mailbox. Defaults to personal."},
			}, "to", "subject", "body"),
		function("send_email",
			"Send a drafted email. Requires confirmation.",
			map[string]param{
				"email_id":  integer("ID of the drafted email"),
				"confirmed": confirmedParam,
			}, "email_id"),
		function("search_emails",
			"Search stored emails by subject, body or recipient.",
			map[string]param{
				"query":       str("Search text"),
				"max_results": integer("Maximum number of results. Defaults to 10."),
			}, "query"),

		// Weather
		function("get_current_weather",
			"Get current weather for a city.",
			map[string]param{
				"city": str("City name, e.g. 'Istanbul,TR'. Defaults to the user's city."),
			}),
		function("get_weather_forecast",
			"Get the weather forecast for the coming days.",
			map[string]param{
				"city": str("City name. Defaults to the user's city."),
				"days": integer("Number of days, 1 to 5. Defaults to 3."),
			}),

		// News
		function("get_news_headlines",
			"Get top news headlines, optionally for a country or category.",
			map[string]param{
				"country":   str("Two-letter country code, e.g. 'tr'. Defaults to the configured country."),
				"category":  str("One of business, entertainment, general, health, science, sports, technology"),
				"query":     str("Optional keyword filter"),
				"page_size": integer("Number of headlines. Defaults to 10."),
			}),
		function("search_news",
			"Search recent news articles on a topic.",
			map[string]param{
				"query":     str("Search query"),
				"language":  str("Language code. Defaults to 'en'."),
				"sort_by":   str("One of relevancy, popularity, publishedAt. Defaults to publishedAt."),
				"page_size": integer("Number of articles. Defaults to 10."),
			}, "query"),

		// Search
		function("web_search",
			"Search the web for current information.",
			map[string]param{
				"query":       str("Search query"),
				"max_results": integer("Maximum number of results. Defaults to 5."),
			}, "query"),

		// Briefing
		function("get_daily_briefing",
			"Get today's briefing: events, tasks, pending emails and weather.",
			map[string]param{}),

		// Knowledge
		function("remember_info",
			"Save a piece of information to the knowledge base.",
			map[string]param{
				"content":  str("What to remember"),
				"category": str("Optional category"),
				"tags":     stringList("Optional tags"),
			}, "content"),
		function("search_memory",
			"Search remembered facts and saved notes.",
			map[string]param{
				"query": str("Search text"),
				"limit": integer("Maximum number of results. Defaults to 5."),
			}, "query"),
		function("add_knowledge",
			"Save a titled knowledge entry.",
			map[string]param{
				"title":    str("Entry title"),
				"content":  str("Entry content"),
				"category": str("Optional category"),
			}, "title", "content"),

		// Diagnostics
		function("check_server_status",
			"Report server health: uptime, memory, goroutines and database state.",
			map[string]param{}),
		function("who_am_i",
			"Describe the assistant's identity and active language model.",
			map[string]param{}),

		// Date and time
		function("get_current_datetime",
			"Get the current date and time in the user's timezone.",
			map[string]param{}),
	}
}

package handler

import (
	"github.com/go-chi/chi/v5"
)

// API groups the authenticated handlers.
type API struct {
	Stream        *StreamHandler
	Conversations *ConversationHandler
	Tasks         *TaskHandler
	Calendar      *CalendarHandler
	Emails        *EmailHandler
	Memory        *MemoryHandler
	Knowledge     *KnowledgeHandler
	Briefing      *BriefingHandler
	News          *NewsHandler
	Settings      *SettingsHandler
	Audit         *AuditHandler
}

// Register mounts the API routes on r. Authentication is applied by the
// caller.
func (a *API) Register(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Post("/stream", a.Stream.Stream)
		r.Get("/conversations", a.Conversations.List)
		r.Get("/conversations/{id}", a.Conversations.Get)
		r.Delete("/conversations/{id}", a.Conversations.Delete)
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", a.Tasks.List)
		r.Post("/", a.Tasks.Create)
		r.Get("/pending", a.Tasks.Pending)
		r.Get("/overdue", a.Tasks.Overdue)
		r.Get("/due-soon", a.Tasks.DueSoon)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.Tasks.Get)
			r.Patch("/", a.Tasks.Update)
			r.Delete("/", a.Tasks.Delete)
			r.Post("/complete", a.Tasks.Complete)
			r.Post("/reopen", a.Tasks.Reopen)
		})
	})

	r.Route("/calendar", func(r chi.Router) {
		r.Get("/", a.Calendar.Range)
		r.Post("/", a.Calendar.Create)
		r.Get("/today", a.Calendar.Today)
		r.Get("/week", a.Calendar.Week)
		r.Get("/next-slot", a.Calendar.NextSlot)
		r.Get("/{id}", a.Calendar.Get)
		r.Patch("/{id}", a.Calendar.Update)
		r.Delete("/{id}", a.Calendar.Delete)
	})

	r.Route("/emails", func(r chi.Router) {
		r.Get("/", a.Emails.List)
		r.Get("/pending", a.Emails.Pending)
		r.Post("/draft", a.Emails.Draft)
		r.Get("/{id}", a.Emails.Get)
		r.Put("/{id}", a.Emails.Update)
		r.Delete("/{id}", a.Emails.Delete)
		r.Post("/{id}/send", a.Emails.Send)
	})

	r.Route("/memory", func(r chi.Router) {
		r.Get("/", a.Memory.List)
		r.Post("/", a.Memory.Store)
		r.Delete("/{id}", a.Memory.Delete)
	})

	r.Route("/knowledge", func(r chi.Router) {
		r.Get("/", a.Knowledge.List)
		r.Get("/search", a.Knowledge.Search)
		r.Post("/notes", a.Knowledge.AddNote)
		r.Post("/entries", a.Knowledge.AddEntry)
		r.Delete("/{id}", a.Knowledge.Delete)
	})

	r.Get("/briefing", a.Briefing.Get)
	r.Get("/news/headlines", a.News.Headlines)
	r.Get("/news/search", a.News.Search)
	r.Get("/settings/llm", a.Settings.Get)
	r.Post("/settings/llm", a.Settings.Update)
	r.Get("/audit", a.Audit.Recent)
}

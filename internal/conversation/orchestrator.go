// ABOUTME: Turn orchestrator: drives one inbound message to a terminal event
// ABOUTME: Thread access, tool loading, streaming generation and the image branch

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Bakhitov/crafty-gateway/internal/auth"
	"github.com/Bakhitov/crafty-gateway/internal/imagegen"
	"github.com/Bakhitov/crafty-gateway/internal/keyvault"
	"github.com/Bakhitov/crafty-gateway/internal/llm"
	"github.com/Bakhitov/crafty-gateway/internal/prompt"
	"github.com/Bakhitov/crafty-gateway/internal/store"
	"github.com/Bakhitov/crafty-gateway/internal/tools"
)

// maxTurnSteps caps the reasoning/tool loop within one turn
const maxTurnSteps = 10

// historyLimit bounds how much thread history a turn carries
const historyLimit = 100

// ModelResolver resolves a credentialed model for a user
type ModelResolver interface {
	Resolve(ctx context.Context, userID, provider, model string) (llm.Model, error)
}

// ToolLoader assembles the per-turn tool set
type ToolLoader interface {
	Load(ctx context.Context, opts tools.LoadOptions) []tools.Tool
}

// ImageGenerator synthesizes one image for a user
type ImageGenerator interface {
	Generate(ctx context.Context, userID, prompt string, s imagegen.Settings) (*imagegen.Result, error)
}

// TurnRequest is everything one inbound message brings to a turn
type TurnRequest struct {
	ThreadID string
	UserID   string
	Message  store.Message
	Provider string
	Model    string
	// ToolChoice is auto, none or manual
	ToolChoice string
	// Mentions scope the turn: agent ids widen to the agent's own mentions
	Mentions []string
	// SystemPrompt is the caller's base preference fragment
	SystemPrompt  string
	ImageSettings *imagegen.Settings
}

// Orchestrator runs conversation turns end to end
type Orchestrator struct {
	store      store.Store
	resolver   ModelResolver
	registry   ToolLoader
	vault      *keyvault.Service
	images     ImageGenerator
	reconciler *Reconciler
	// mcpPrompt is the plugin-server customization fragment, applied
	// only when the turn actually carries tools.
	mcpPrompt string
	logger    *slog.Logger
}

// NewOrchestrator wires a turn orchestrator
func NewOrchestrator(st store.Store, resolver ModelResolver, registry ToolLoader, vault *keyvault.Service, images ImageGenerator, mcpPrompt string) *Orchestrator {
	return &Orchestrator{
		store:      st,
		resolver:   resolver,
		registry:   registry,
		vault:      vault,
		images:     images,
		reconciler: NewReconciler(st),
		mcpPrompt:  mcpPrompt,
		logger:     slog.Default().With("component", "orchestrator"),
	}
}

// Run executes one turn. The returned channel closes after exactly one
// terminal event. Ownership is checked before any mutation.
func (o *Orchestrator) Run(ctx context.Context, req *TurnRequest) (<-chan Event, error) {
	thread, err := o.ensureThread(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		o.runTurn(ctx, thread, req, out)
	}()
	return out, nil
}

// ensureThread loads or creates the thread, rejecting foreign owners
// before any write happens.
func (o *Orchestrator) ensureThread(ctx context.Context, req *TurnRequest) (*store.Thread, error) {
	thread, err := o.store.GetThread(ctx, req.ThreadID)
	if errors.Is(err, store.ErrNotFound) {
		thread = &store.Thread{ID: req.ThreadID, UserID: req.UserID, Title: titleFrom(&req.Message)}
		if err := o.store.CreateThread(ctx, thread); err != nil {
			return nil, err
		}
		return thread, nil
	}
	if err != nil {
		return nil, err
	}
	if err := auth.RequireOwner(auth.WithUserID(ctx, req.UserID), thread.UserID); err != nil {
		return nil, err
	}
	return thread, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, thread *store.Thread, req *TurnRequest, out chan<- Event) {
	inbound := req.Message
	if inbound.ID == "" {
		inbound.ID = uuid.NewString()
	}
	inbound.ThreadID = thread.ID
	inbound.Role = store.RoleUser
	if inbound.CreatedAt.IsZero() {
		inbound.CreatedAt = time.Now().UTC()
	}

	history, err := o.store.GetThreadMessages(ctx, thread.ID, historyLimit)
	if err != nil {
		out <- Event{Type: EventError, Error: "loading history: " + err.Error()}
		return
	}
	// Idempotent resend: same id as the last row replaces it
	if n := len(history); n > 0 && history[n-1].ID == inbound.ID {
		history = history[:n-1]
	}

	model, err := o.resolver.Resolve(ctx, req.UserID, req.Provider, req.Model)
	if err != nil {
		out <- Event{Type: EventError, Error: err.Error()}
		return
	}
	info := llm.Lookup(model.Provider(), model.Name())

	mentions, agentID := o.resolveMentions(ctx, req)

	eligible := model.SupportsTools() &&
		(req.ToolChoice != tools.ChoiceNone || len(mentions) > 0)

	// Turn-scoped search credential: set before tool construction,
	// cleared on every exit path.
	searchKey := &tools.CredentialSlot{}
	if key, err := o.vault.Resolve(ctx, req.UserID, "exa"); err == nil {
		searchKey.Set(key)
	}
	defer searchKey.Clear()

	var toolset []tools.Tool
	if eligible {
		toolset = o.registry.Load(ctx, tools.LoadOptions{
			UserID:     req.UserID,
			ToolChoice: req.ToolChoice,
			SearchKey:  searchKey,
		})
	}

	o.convertFileParts(ctx, &inbound, toolset)
	o.resumePendingTools(ctx, history, toolset, out)

	system := prompt.NewBuilder().
		Add(req.SystemPrompt).
		AddIf(len(toolset) > 0 && o.mcpPrompt != "", o.mcpPrompt).
		AddIf(!model.SupportsTools(), prompt.ToolCallUnsupportedCaveat).
		Build()

	if req.ImageSettings != nil || info.ImageOnly || info.ImageCapable {
		o.runImageBranch(ctx, req, &inbound, model, out)
		return
	}

	o.runGeneration(ctx, req, &inbound, history, model, toolset, system, agentID, out)
}

// resolveMentions maps agent-id mentions onto the stored agent, merging
// the agent's own declared mentions into the turn's list. The first
// resolvable agent mention wins.
func (o *Orchestrator) resolveMentions(ctx context.Context, req *TurnRequest) ([]string, string) {
	mentions := append([]string(nil), req.Mentions...)
	for _, m := range req.Mentions {
		agent, err := o.store.GetAgent(ctx, m)
		if err != nil || agent.UserID != req.UserID {
			continue
		}
		mentions = append(mentions, agent.Instructions.Mentions...)
		return mentions, agent.ID
	}
	return mentions, ""
}

// convertFileParts replaces the inbound message's file parts with one
// extracted-text part when a document conversion tool is available.
// Conversion failures leave the message untouched.
func (o *Orchestrator) convertFileParts(ctx context.Context, msg *store.Message, toolset []tools.Tool) {
	var converter *tools.Tool
	for i := range toolset {
		if strings.Contains(toolset[i].Name, "markitdown") && toolset[i].Execute != nil {
			converter = &toolset[i]
			break
		}
	}
	if converter == nil {
		return
	}

	var kept []store.Part
	var texts []string
	converted := false
	for _, p := range msg.Parts {
		if p.Type != store.PartTypeFile {
			kept = append(kept, p)
			continue
		}
		args, _ := json.Marshal(map[string]string{"uri": p.URL, "filename": p.Filename})
		text, err := converter.Execute(ctx, args)
		if err != nil || text == "" {
			kept = append(kept, p)
			continue
		}
		texts = append(texts, text)
		converted = true
	}
	if !converted {
		return
	}
	if len(texts) > 0 {
		kept = append(kept, store.Part{Type: store.PartTypeText, Text: strings.Join(texts, "\n\n")})
	}
	msg.Parts = kept
}

// resumePendingTools executes tool parts a prior turn left in the
// input-available state, emitting their outputs and updating the row.
// This closes out client-resumed manual tool calls.
func (o *Orchestrator) resumePendingTools(ctx context.Context, history []*store.Message, toolset []tools.Tool, out chan<- Event) {
	if len(history) == 0 {
		return
	}
	last := history[len(history)-1]
	if last.Role != store.RoleAssistant {
		return
	}

	changed := false
	for i := range last.Parts {
		p := &last.Parts[i]
		if p.Type != store.PartTypeTool || p.State != store.ToolStateInputAvailable {
			continue
		}
		tool := tools.FindByName(toolset, p.ToolName)
		if tool == nil || tool.Execute == nil {
			continue
		}

		result, err := tool.Execute(ctx, p.Input)
		if err != nil {
			p.State = store.ToolStateOutputError
			p.Output, _ = json.Marshal(err.Error())
		} else {
			p.State = store.ToolStateOutputAvailable
			p.Output, _ = json.Marshal(result)
		}
		out <- Event{
			Type:       EventToolResult,
			ToolCallID: p.ToolCallID,
			ToolName:   p.ToolName,
			Output:     p.Output,
			IsError:    p.State == store.ToolStateOutputError,
		}
		changed = true
	}

	if changed {
		if err := o.store.SaveMessage(ctx, last); err != nil {
			o.logger.Warn("resumed tool persistence failed", "message_id", last.ID, "error", err)
		}
	}
}

// runImageBranch synthesizes one image and terminates the turn
func (o *Orchestrator) runImageBranch(ctx context.Context, req *TurnRequest, inbound *store.Message, model llm.Model, out chan<- Event) {
	settings := imagegen.Settings{Engine: imagegen.EngineAuto}
	if req.ImageSettings != nil {
		settings = *req.ImageSettings
	}
	settings.RequestedProvider = model.Provider()
	if settings.ImageModel == "" && llm.Lookup(model.Provider(), model.Name()).ImageOnly {
		settings.ImageModel = model.Name()
	}

	promptText := textOf(inbound.Parts)
	result, err := o.images.Generate(ctx, req.UserID, promptText, settings)
	if err != nil {
		out <- Event{Type: EventError, Error: err.Error()}
		return
	}

	markdown := result.Markdown()
	out <- Event{Type: EventImage, Text: markdown}

	assistant := &store.Message{
		ID:       uuid.NewString(),
		ThreadID: inbound.ThreadID,
		Role:     store.RoleAssistant,
		Parts:    []store.Part{{Type: store.PartTypeText, Text: markdown}},
		Metadata: &store.MessageMetadata{
			Provider: result.Engine,
			Model:    result.Model,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := o.reconciler.Persist(ctx, &TurnResult{
		UserMessage: inbound,
		Assistant:   assistant,
		ImageBranch: true,
	}); err != nil {
		out <- Event{Type: EventError, Error: err.Error()}
		return
	}
	out <- Event{Type: EventFinish}
}

// runGeneration drives the streaming reasoning/tool loop
func (o *Orchestrator) runGeneration(ctx context.Context, req *TurnRequest, inbound *store.Message, history []*store.Message, model llm.Model, toolset []tools.Tool, system, agentID string, out chan<- Event) {
	msgs := messagesToLLM(history)
	msgs = append(msgs, llm.Message{Role: "user", Text: textOf(inbound.Parts)})

	defs := toolDefs(toolset)
	var assistantParts []store.Part
	var usage *llm.Usage
	awaitingClient := false

	for step := 0; step < maxTurnSteps && !awaitingClient; step++ {
		events, err := model.Stream(ctx, &llm.Request{
			Model:    model.Name(),
			System:   system,
			Messages: msgs,
			Tools:    defs,
		})
		if err != nil {
			out <- Event{Type: EventError, Error: err.Error()}
			return
		}

		var stepText strings.Builder
		var calls []llm.ToolCall
		failed := false
		for ev := range llm.SmoothWords(events) {
			switch {
			case ev.Err != nil:
				out <- Event{Type: EventError, Error: ev.Err.Error()}
				failed = true
			case ev.Text != "":
				out <- Event{Type: EventText, Text: ev.Text}
				stepText.WriteString(ev.Text)
			case ev.ToolCall != nil:
				calls = append(calls, *ev.ToolCall)
			case ev.Done:
				if ev.Usage != nil {
					usage = ev.Usage
				}
			}
		}
		if failed {
			// Model errors persist nothing for the attempt
			return
		}

		if step > 0 {
			assistantParts = append(assistantParts, store.Part{Type: store.PartTypeStepStart})
		}
		if stepText.Len() > 0 {
			assistantParts = append(assistantParts, store.Part{Type: store.PartTypeText, Text: stepText.String()})
		}

		if len(calls) == 0 {
			break
		}

		msgs = append(msgs, llm.Message{Role: "assistant", Text: stepText.String(), ToolCalls: calls})

		var results []llm.ToolResult
		for _, call := range calls {
			out <- Event{Type: EventToolCall, ToolCallID: call.ID, ToolName: call.Name, Input: call.Input}

			tool := tools.FindByName(toolset, call.Name)
			if tool == nil || tool.Execute == nil {
				// Manual mode or unknown tool: hand the call to the
				// client and end the turn at input-available.
				assistantParts = append(assistantParts, store.Part{
					Type:       store.PartTypeTool,
					ToolCallID: call.ID,
					ToolName:   call.Name,
					State:      store.ToolStateInputAvailable,
					Input:      call.Input,
				})
				awaitingClient = true
				continue
			}

			output, err := tool.Execute(ctx, call.Input)
			part := store.Part{
				Type:       store.PartTypeTool,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Input:      call.Input,
			}
			result := llm.ToolResult{ToolCallID: call.ID, Name: call.Name}
			if err != nil {
				part.State = store.ToolStateOutputError
				part.Output, _ = json.Marshal(err.Error())
				result.Content = err.Error()
				result.IsError = true
			} else {
				part.State = store.ToolStateOutputAvailable
				part.Output, _ = json.Marshal(output)
				result.Content = output
			}
			assistantParts = append(assistantParts, part)
			results = append(results, result)

			out <- Event{
				Type:       EventToolResult,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Output:     part.Output,
				IsError:    result.IsError,
			}
		}

		if awaitingClient {
			break
		}
		msgs = append(msgs, llm.Message{Role: "tool", ToolResults: results})
	}

	metadata := &store.MessageMetadata{
		Provider:   model.Provider(),
		Model:      model.Name(),
		AgentID:    agentID,
		ToolChoice: req.ToolChoice,
		ToolCount:  len(toolset),
	}
	if usage != nil {
		metadata.Usage, _ = json.Marshal(usage)
	}

	assistant := &store.Message{
		ID:        uuid.NewString(),
		ThreadID:  inbound.ThreadID,
		Role:      store.RoleAssistant,
		Parts:     assistantParts,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	if err := o.reconciler.Persist(ctx, &TurnResult{
		UserMessage: inbound,
		Assistant:   assistant,
		AgentID:     agentID,
	}); err != nil {
		out <- Event{Type: EventError, Error: err.Error()}
		return
	}

	finish := Event{Type: EventFinish}
	if usage != nil {
		finish.Usage = usage
	}
	out <- finish
}

// messagesToLLM converts stored history into provider-neutral messages
func messagesToLLM(history []*store.Message) []llm.Message {
	var msgs []llm.Message
	for _, m := range history {
		switch m.Role {
		case store.RoleUser:
			msgs = append(msgs, llm.Message{Role: "user", Text: textOf(m.Parts)})
		case store.RoleAssistant:
			assistant := llm.Message{Role: "assistant", Text: textOf(m.Parts)}
			var results []llm.ToolResult
			for _, p := range m.Parts {
				if p.Type != store.PartTypeTool {
					continue
				}
				assistant.ToolCalls = append(assistant.ToolCalls, llm.ToolCall{
					ID: p.ToolCallID, Name: p.ToolName, Input: p.Input,
				})
				if p.State == store.ToolStateOutputAvailable || p.State == store.ToolStateOutputError {
					results = append(results, llm.ToolResult{
						ToolCallID: p.ToolCallID,
						Name:       p.ToolName,
						Content:    string(p.Output),
						IsError:    p.State == store.ToolStateOutputError,
					})
				}
			}
			msgs = append(msgs, assistant)
			if len(results) > 0 {
				msgs = append(msgs, llm.Message{Role: "tool", ToolResults: results})
			}
		}
	}
	return msgs
}

func toolDefs(ts []tools.Tool) []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(ts))
	for _, t := range ts {
		defs = append(defs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return defs
}

// textOf concatenates a part list's literal text
func textOf(parts []store.Part) string {
	var texts []string
	for _, p := range parts {
		if p.Type == store.PartTypeText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// titleFrom derives a new thread's title from its first message
func titleFrom(msg *store.Message) string {
	text := textOf(msg.Parts)
	if len(text) > 80 {
		text = text[:80]
	}
	return text
}

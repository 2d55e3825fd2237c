package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"legal-rag-api/internal/domain/entity"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptClassifyIntentV1 PromptID = "classify_intent_v1"

	reasoningSystemFile = "templates/legal_reasoning_v1.system.txt"
)

// StagePromptID 返回推理阶段对应的模板 ID
func StagePromptID(stage entity.StageName) PromptID {
	return PromptID("stage_" + string(stage) + "_v1")
}

type promptFiles struct {
	system string
	user   string
}

var promptTable = func() map[PromptID]promptFiles {
	m := map[PromptID]promptFiles{
		PromptClassifyIntentV1: {
			system: "templates/classify_intent_v1.system.txt",
			user:   "templates/classify_intent_v1.user.txt",
		},
	}
	for _, stage := range entity.Stages {
		id := StagePromptID(stage)
		m[id] = promptFiles{system: reasoningSystemFile, user: "templates/" + string(id) + ".user.txt"}
	}
	return m
}()

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	files, ok := promptTable[id]
	if !ok {
		return nil, fmt.Errorf("unknown prompt id: %s", id)
	}
	system, err := readEmbeddedText(files.system)
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(files.user)
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

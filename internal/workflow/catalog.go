package workflow

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-cli/internal/model"
)

//go:embed templates/*.yaml
var builtinFS embed.FS

// DefaultTemplateIDs maps each workflow type to its built-in template.
var DefaultTemplateIDs = map[model.WorkflowType]string{
	model.WorkflowColdOutreach:    "cold_outreach_v1",
	model.WorkflowWarmFollowUp:    "warm_follow_up_v1",
	model.WorkflowResponseNurture: "response_nurture_v1",
	model.WorkflowVIPSequence:     "vip_sequence_v1",
	model.WorkflowReEngagement:    "re_engagement_v1",
}

// Catalog holds registered templates. Templates are read-only once registered.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]*Template
	byType    map[model.WorkflowType]string
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		templates: make(map[string]*Template),
		byType:    make(map[model.WorkflowType]string),
	}
}

// BuiltinCatalog returns a catalog preloaded with the embedded templates.
func BuiltinCatalog() (*Catalog, error) {
	c := NewCatalog()
	if err := c.LoadFS(builtinFS, "templates"); err != nil {
		return nil, err
	}
	return c, nil
}

// Register validates and adds a template. The first template registered for
// a type becomes that type's default unless a built-in id claims it.
func (c *Catalog) Register(t *Template) error {
	if t == nil {
		return model.Validationf("nil template")
	}
	if err := t.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.templates[t.ID]; ok {
		return model.Validationf("template %s already registered", t.ID)
	}
	c.templates[t.ID] = t
	if _, ok := c.byType[t.Type]; !ok || DefaultTemplateIDs[t.Type] == t.ID {
		c.byType[t.Type] = t.ID
	}
	return nil
}

// Get returns a template by id.
func (c *Catalog) Get(id string) (*Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[id]
	if !ok {
		return nil, model.NotFoundf("template %s", id)
	}
	return t, nil
}

// ForType returns the default template of a workflow type.
func (c *Catalog) ForType(wt model.WorkflowType) (*Template, error) {
	c.mu.RLock()
	id, ok := c.byType[wt]
	c.mu.RUnlock()
	if !ok {
		return nil, model.NotFoundf("template for workflow type %s", wt)
	}
	return c.Get(id)
}

// List returns every template sorted by id.
func (c *Catalog) List() []*Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDir registers every *.yaml or *.yml template in dir.
func (c *Catalog) LoadDir(dir string) error {
	return c.LoadFS(os.DirFS(dir), ".")
}

// LoadFS registers every YAML template under root in fsys.
func (c *Catalog) LoadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return eris.Wrapf(err, "workflow: read templates %s", root)
	}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(root, e.Name())))
		if err != nil {
			return eris.Wrapf(err, "workflow: read template %s", e.Name())
		}
		t, err := ParseTemplate(data)
		if err != nil {
			return eris.Wrapf(err, "workflow: template %s", e.Name())
		}
		if err := c.Register(t); err != nil {
			return err
		}
		zap.L().Debug("workflow: registered template",
			zap.String("id", t.ID),
			zap.String("type", string(t.Type)),
			zap.Int("steps", len(t.Steps)),
		)
	}
	return nil
}

// ParseTemplate decodes one YAML template document.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(model.ErrValidation, "workflow: parse template: "+err.Error())
	}
	return &t, nil
}

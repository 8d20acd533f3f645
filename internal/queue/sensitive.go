package queue

import (
	"os"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// DefaultSensitiveKeywords are substrings of task types that touch filings,
// money, contracts, or clients.
var DefaultSensitiveKeywords = []string{
	"petition",
	"peticao",
	"petição",
	"protocol",
	"contract",
	"contrato",
	"billing",
	"faturamento",
	"pagamento",
	"client_communication",
	"client-communication",
	"comunicacao",
	"comunicação",
	"legal_advice",
	"parecer",
}

// SensitiveDetector flags task types that always need human review.
// A type is sensitive if it is listed exactly or contains a keyword.
type SensitiveDetector struct {
	mu       sync.RWMutex
	types    map[models.TaskType]bool
	keywords []string
}

// humanReviewFile is the structure of a human review config file.
type humanReviewFile struct {
	HumanReview struct {
		Types    []string `yaml:"sensitive_types"`
		Keywords []string `yaml:"sensitive_keywords"`
	} `yaml:"human_review"`
}

// NewSensitiveDetector creates a detector with the default keywords.
func NewSensitiveDetector() *SensitiveDetector {
	return &SensitiveDetector{
		types:    make(map[models.TaskType]bool),
		keywords: append([]string{}, DefaultSensitiveKeywords...),
	}
}

// IsSensitive reports whether a task type needs human review.
func (d *SensitiveDetector) IsSensitive(t models.TaskType) bool {
	sensitive, _ := d.IsSensitiveWithReason(t)
	return sensitive
}

// IsSensitiveWithReason reports whether a task type is sensitive and why.
func (d *SensitiveDetector) IsSensitiveWithReason(t models.TaskType) (bool, string) {
	if d == nil {
		return false, ""
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.types[t] {
		return true, "task type is flagged sensitive: " + string(t)
	}
	lower := strings.ToLower(string(t))
	for _, kw := range d.keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true, "task type contains sensitive keyword: " + kw
		}
	}
	return false, ""
}

// AddType flags an exact task type as sensitive.
func (d *SensitiveDetector) AddType(t models.TaskType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.types[t] = true
}

// AddKeyword adds a keyword to the sensitive keyword list.
func (d *SensitiveDetector) AddKeyword(kw string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keywords = append(d.keywords, kw)
}

// LoadConfig extends the detector from the human_review block of a YAML file.
func (d *SensitiveDetector) LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cfg humanReviewFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range cfg.HumanReview.Types {
		d.types[models.TaskType(t)] = true
	}
	d.keywords = append(d.keywords, cfg.HumanReview.Keywords...)
	return nil
}

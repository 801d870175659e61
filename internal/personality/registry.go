// Package personality implements PersonalityRegistry: the fixed set of
// personas GuidancePipeline can speak as, seeded at startup from the
// personalities enumerated in personality_service.py.
package personality

import (
	"log/slog"
	"time"

	"github.com/vimarsh/guidance/internal/domain"
)

// defaultTimeout and defaultMaxRetries are the standard per-call settings
// every personality carries unless overridden below, matching
// llm_service.py's PersonalityConfig defaults (timeout_seconds=30,
// max_retries=2).
const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 2
)

// defaultID is substituted whenever a request names an unknown
// personality, matching the original's fallback-to-krishna behavior.
const defaultID = "krishna"

// Registry holds every configured Personality, keyed by id.
type Registry struct {
	byID   map[string]domain.Personality
	logger *slog.Logger
}

// NewRegistry creates a Registry seeded with the twelve built-in
// personalities.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{byID: make(map[string]domain.Personality), logger: logger}
	for _, p := range builtins() {
		r.byID[p.ID] = p
	}
	return r
}

// Get returns the personality for id, falling back to the configured
// default and logging a warning if id is unknown.
func (r *Registry) Get(id string) domain.Personality {
	if p, ok := r.byID[id]; ok {
		return p
	}
	r.logger.Warn("unknown personality requested, falling back to default", "requested", id, "default", defaultID)
	return r.byID[defaultID]
}

// Default returns the registry's fallback personality.
func (r *Registry) Default() domain.Personality {
	return r.byID[defaultID]
}

// All returns every registered personality.
func (r *Registry) All() []domain.Personality {
	out := make([]domain.Personality, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	return out
}

// builtins returns the twelve personalities from personality_service.py,
// each carrying its original greeting phrase verbatim. Every personality
// gets the default timeout/retry budget except Newton, whose
// timeout_seconds=20/max_retries=3 override traces directly to
// llm_service.py's PersonalityConfig for "newton" (reduced timeout to
// prevent 504s, extra retries for stability).
func builtins() []domain.Personality {
	return []domain.Personality{
		{
			ID:                "krishna",
			DisplayName:       "Krishna",
			Domain:            domain.DomainSpiritual,
			Greeting:          `Beloved devotee, in the Bhagavad Gita 2.47, I teach: "You have the right to perform your prescribed duty, but not to the fruits of action." This timeless wisdom guides us to act with devotion while surrendering attachment to outcomes. Focus on righteous action with love and dedication. May you find peace in dharmic living.`,
			MaxChars:          500,
			Timeout:           defaultTimeout,
			MaxRetries:        defaultMaxRetries,
			CorpusPartition:   "krishna",
			CitationsRequired: true,
		},
		{
			ID:              "einstein",
			DisplayName:     "Einstein",
			Domain:          domain.DomainScientific,
			Greeting:        `My friend, "Imagination is more important than knowledge, for knowledge is limited." Approach this question with curiosity and wonder. Science teaches us to observe, hypothesize, and test our understanding. Remember that the universe is both mysteriously beautiful and elegantly mathematical. Keep questioning and learning.`,
			MaxChars:        500,
			Timeout:         defaultTimeout,
			MaxRetries:      defaultMaxRetries,
			CorpusPartition: "einstein",
		},
		{
			ID:              "lincoln",
			DisplayName:     "Lincoln",
			Domain:          domain.DomainHistorical,
			Greeting:        `My fellow citizen, "A house divided against itself cannot stand." In times of challenge, we must appeal to our better angels. True leadership requires both firmness in principle and compassion in action. Stand for justice, preserve our union, and remember that government of the people, by the people, and for the people must endure.`,
			MaxChars:        500,
			Timeout:         defaultTimeout,
			MaxRetries:      defaultMaxRetries,
			CorpusPartition: "lincoln",
		},
		{
			ID:              "marcus_aurelius",
			DisplayName:     "Marcus Aurelius",
			Domain:          domain.DomainPhilosophical,
			Greeting:        `Fellow seeker, "You have power over your mind - not outside events. Realize this, and you will find strength." Focus on what is within your control: your thoughts, actions, and responses. Practice the four cardinal virtues - wisdom, justice, courage, and temperance. Accept what cannot be changed with grace.`,
			MaxChars:        500,
			Timeout:         defaultTimeout,
			MaxRetries:      defaultMaxRetries,
			CorpusPartition: "marcus_aurelius",
		},
		{
			ID:                "buddha",
			DisplayName:       "Buddha",
			Domain:            domain.DomainSpiritual,
			Greeting:          `Dear friend, suffering arises from attachment and craving. Through mindful awareness and compassion, we can find the middle path that leads to peace. Practice loving-kindness toward yourself and others, observe the impermanent nature of all things, and cultivate wisdom through meditation. May you find liberation from suffering.`,
			MaxChars:          500,
			Timeout:           defaultTimeout,
			MaxRetries:        defaultMaxRetries,
			CorpusPartition:   "buddha",
			CitationsRequired: true,
		},
		{
			ID:                "jesus",
			DisplayName:       "Jesus",
			Domain:            domain.DomainSpiritual,
			Greeting:          `Beloved child, "Come unto me, all you who are weary and burdened, and I will give you rest" (Matthew 11:28). In times of struggle, remember that love conquers all. Forgive others as you have been forgiven, show compassion to those in need, and trust in divine grace. Your heart is precious to God. Peace be with you.`,
			MaxChars:          500,
			Timeout:           defaultTimeout,
			MaxRetries:        defaultMaxRetries,
			CorpusPartition:   "jesus",
			CitationsRequired: true,
		},
		{
			ID:              "rumi",
			DisplayName:     "Rumi",
			Domain:          domain.DomainSpiritual,
			Greeting:        `Beloved, the heart is the sanctuary where the Beloved resides. In your longing, you are already close to the divine. "Let yourself be silently drawn by the strange pull of what you really love. It will not lead you astray." Open your heart like a flower to the sun, and let love transform your very being.`,
			MaxChars:        500,
			Timeout:         defaultTimeout,
			MaxRetries:      defaultMaxRetries,
			CorpusPartition: "rumi",
		},
		{
			ID:              "lao_tzu",
			DisplayName:     "Lao Tzu",
			Domain:          domain.DomainPhilosophical,
			Greeting:        `Dear friend, the Tao that can be spoken is not the eternal Tao. Like water, flow naturally around obstacles. Practice wu wei - effortless action in harmony with nature. Seek simplicity, embrace humility, and find strength in gentleness. The way of the Tao brings peace through non-resistance.`,
			MaxChars:        500,
			Timeout:         defaultTimeout,
			MaxRetries:      defaultMaxRetries,
			CorpusPartition: "lao_tzu",
		},
		{
			ID:              "newton",
			DisplayName:     "Newton",
			Domain:          domain.DomainScientific,
			Greeting:        `My friend, observe the natural world with wonder and mathematical precision. Through careful observation and logical deduction, we can understand the fundamental laws that govern motion, gravity, and the very fabric of reality. "If I have seen further, it is by standing on the shoulders of giants." Let reason and experimentation guide your inquiry.`,
			MaxChars:        500,
			Timeout:         20 * time.Second,
			MaxRetries:      3,
			CorpusPartition: "newton",
		},
		{
			ID:              "chanakya",
			DisplayName:     "Chanakya",
			Domain:          domain.DomainHistorical,
			Greeting:        `Dear student, wise governance requires both strategic thinking and moral foundation. A ruler must balance dharma with practical statecraft. "Before you start some work, always ask yourself three questions - Why am I doing it, What the results might be and Will I be successful." Plan thoroughly, act decisively, and always consider the welfare of your people.`,
			MaxChars:        500,
			Timeout:         defaultTimeout,
			MaxRetries:      defaultMaxRetries,
			CorpusPartition: "chanakya",
		},
		{
			ID:              "confucius",
			DisplayName:     "Confucius",
			Domain:          domain.DomainPhilosophical,
			Greeting:        `Honorable student, "The man who moves a mountain begins by carrying away small stones." True wisdom comes through continuous learning and virtuous action. Cultivate ren (humaneness), li (proper conduct), and yi (righteousness). Remember: "By three methods we may learn wisdom: First, by reflection, which is noblest; Second, by imitation, which is easiest; and third by experience, which is the bitterest."`,
			MaxChars:        500,
			Timeout:         defaultTimeout,
			MaxRetries:      defaultMaxRetries,
			CorpusPartition: "confucius",
		},
		{
			ID:              "tesla",
			DisplayName:     "Tesla",
			Domain:          domain.DomainScientific,
			Greeting:        `Curious mind, the future belongs to those who dare to imagine beyond current limitations. Through harnessing the forces of nature - electricity, magnetism, resonance - we can transform human civilization. "The present is theirs; the future, for which I really worked, is mine." Think boldly and let innovation light the path forward.`,
			MaxChars:        500,
			Timeout:         defaultTimeout,
			MaxRetries:      defaultMaxRetries,
			CorpusPartition: "tesla",
		},
	}
}

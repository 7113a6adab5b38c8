// Package config loads RaveDigest settings from the environment.
//
// Every service builds one immutable Settings value at startup (after
// godotenv has been given a chance to populate the environment) and passes
// the sections it needs to its collaborators. There is no global settings
// singleton.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings combines all configuration sections.
type Settings struct {
	Postgres  PostgresSettings
	Redis     RedisSettings
	OpenAI    OpenAISettings
	Notion    NotionSettings
	Service   ServiceSettings
	Scheduler SchedulerSettings
	Logging   LoggingSettings
}

// PostgresSettings holds relational store configuration.
type PostgresSettings struct {
	URL      string
	User     string
	Password string
	Host     string
	Port     int
	Database string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN returns the connection string: POSTGRES_URL when set, otherwise a URL
// constructed from the component variables.
func (p PostgresSettings) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.Database,
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisSettings holds message bus configuration.
type RedisSettings struct {
	URL      string
	Host     string
	Port     int
	DB       int
	Password string
}

// Addr returns the REDIS_URL when set, otherwise a URL constructed from the
// component variables.
func (r RedisSettings) Addr() string {
	if r.URL != "" {
		return r.URL
	}
	if r.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d", r.Password, r.Host, r.Port, r.DB)
	}
	return fmt.Sprintf("redis://%s:%d/%d", r.Host, r.Port, r.DB)
}

// OpenAISettings holds LLM configuration.
type OpenAISettings struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Validate checks the fields required by services that call the LLM.
func (o OpenAISettings) Validate() error {
	if o.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}

// NotionSettings holds knowledge-base configuration.
type NotionSettings struct {
	APIKey     string
	DatabaseID string
}

// Validate checks the fields required by the publisher.
func (n NotionSettings) Validate() error {
	if n.APIKey == "" {
		return fmt.Errorf("NOTION_API_KEY is required")
	}
	if n.DatabaseID == "" {
		return fmt.Errorf("NOTION_DB_ID is required")
	}
	return nil
}

// Feed is one RSS source: where to fetch and what to call it.
type Feed struct {
	URL    string
	Source string
}

// ServiceSettings holds the cross-service pipeline parameters.
type ServiceSettings struct {
	// Collector
	RSSFeeds []Feed

	// Analyzer
	DeveloperKeywords         []string
	CosineSimilarityThreshold float64

	// Composer
	MaxArticlesPerDigest int

	// Streams
	StreamMaxLength     int64
	ConsumerGroupPrefix string

	// Retry
	MaxRetries         int
	RetryDelay         time.Duration
	RetryBackoffFactor float64

	// Timeouts
	HTTPTimeout  time.Duration
	RedisTimeout time.Duration
}

// Group returns the consumer-group name for a pipeline stage,
// e.g. Group("analyzer") == "ravedigest-analyzer".
func (s ServiceSettings) Group(stage string) string {
	return s.ConsumerGroupPrefix + "-" + stage
}

// SchedulerSettings holds the orchestrator's targets and polling knobs.
type SchedulerSettings struct {
	CollectorURL    string
	AnalyzerURL     string
	ComposerURL     string
	NotionWorkerURL string

	HTTPTimeout       time.Duration
	StatusTimeout     time.Duration
	StatusMaxAttempts int

	// ScheduleTime is the local "HH:MM" at which the daily job fires.
	ScheduleTime string
}

// LoggingSettings holds log output configuration.
type LoggingSettings struct {
	Level    string
	JSONLogs bool
}

// DefaultFeeds are the feeds collected when RSS_FEEDS is not set.
func DefaultFeeds() []Feed {
	return []Feed{
		{URL: "https://techcrunch.com/category/artificial-intelligence/feed", Source: "TechCrunch AI"},
		{URL: "https://www.wired.com/feed/tag/ai/latest/rss", Source: "Wired AI"},
		{URL: "https://www.theverge.com/rss/ai-artificial-intelligence/index.xml", Source: "The Verge AI"},
		{URL: "https://blog.kore.ai/rss.xml", Source: "Kore.ai Blog"},
		{URL: "https://thenewstack.io/blog/feed/", Source: "The New Stack"},
	}
}

// DefaultDeveloperKeywords are the classifier keywords used when
// DEVELOPER_KEYWORDS is not set.
func DefaultDeveloperKeywords() []string {
	return []string{
		"ai", "machine learning", "deep learning", "neural network",
		"ai engineering", "developer", "programming", "mcp", "langchain",
		"openai", "anthropic", "python", "javascript", "typescript",
		"api", "microservices", "kubernetes", "docker", "aws", "gcp",
	}
}

// Load builds Settings from the environment. Values that fail to parse
// return an error rather than being silently defaulted.
func Load() (*Settings, error) {
	pgPort, err := getEnvInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, err
	}
	redisPort, err := getEnvInt("REDIS_PORT", 6379)
	if err != nil {
		return nil, err
	}
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	maxTokens, err := getEnvInt("OPENAI_MAX_TOKENS", 1000)
	if err != nil {
		return nil, err
	}
	temperature, err := getEnvFloat("OPENAI_TEMPERATURE", 0.7)
	if err != nil {
		return nil, err
	}
	cosineThreshold, err := getEnvFloat("COSINE_SIMILARITY_THRESHOLD", 0.6)
	if err != nil {
		return nil, err
	}
	maxArticles, err := getEnvInt("MAX_ARTICLES_PER_DIGEST", 20)
	if err != nil {
		return nil, err
	}
	streamMaxLen, err := getEnvInt("STREAM_MAX_LENGTH", 1000)
	if err != nil {
		return nil, err
	}
	maxRetries, err := getEnvInt("MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	retryDelay, err := getEnvSeconds("RETRY_DELAY", 1.0)
	if err != nil {
		return nil, err
	}
	backoffFactor, err := getEnvFloat("RETRY_BACKOFF_FACTOR", 2.0)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := getEnvSeconds("HTTP_TIMEOUT", 30.0)
	if err != nil {
		return nil, err
	}
	redisTimeout, err := getEnvSeconds("REDIS_TIMEOUT", 5.0)
	if err != nil {
		return nil, err
	}
	schedTimeout, err := getEnvSeconds("SCHEDULER_HTTP_TIMEOUT", 30.0)
	if err != nil {
		return nil, err
	}
	statusTimeout, err := getEnvSeconds("SCHEDULER_STATUS_TIMEOUT", 15.0)
	if err != nil {
		return nil, err
	}
	statusAttempts, err := getEnvInt("SCHEDULER_STATUS_MAX_ATTEMPTS", 35)
	if err != nil {
		return nil, err
	}

	feeds, err := parseFeeds(os.Getenv("RSS_FEEDS"))
	if err != nil {
		return nil, err
	}

	keywords := getEnvList("DEVELOPER_KEYWORDS")
	if len(keywords) == 0 {
		keywords = DefaultDeveloperKeywords()
	}

	return &Settings{
		Postgres: PostgresSettings{
			URL:      os.Getenv("POSTGRES_URL"),
			User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Host:     getEnvOrDefault("POSTGRES_HOST", "postgres"),
			Port:     pgPort,
			Database: getEnvOrDefault("POSTGRES_DB", "digest_db"),

			// Session pool: size 10 + overflow 20, recycle hourly.
			MaxOpenConns:    30,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Redis: RedisSettings{
			URL:      os.Getenv("REDIS_URL"),
			Host:     getEnvOrDefault("REDIS_HOST", "redis"),
			Port:     redisPort,
			DB:       redisDB,
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		OpenAI: OpenAISettings{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Model:       getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			MaxTokens:   maxTokens,
			Temperature: float32(temperature),
		},
		Notion: NotionSettings{
			APIKey:     os.Getenv("NOTION_API_KEY"),
			DatabaseID: os.Getenv("NOTION_DB_ID"),
		},
		Service: ServiceSettings{
			RSSFeeds:                  feeds,
			DeveloperKeywords:         keywords,
			CosineSimilarityThreshold: cosineThreshold,
			MaxArticlesPerDigest:      maxArticles,
			StreamMaxLength:           int64(streamMaxLen),
			ConsumerGroupPrefix:       getEnvOrDefault("CONSUMER_GROUP_PREFIX", "ravedigest"),
			MaxRetries:                maxRetries,
			RetryDelay:                retryDelay,
			RetryBackoffFactor:        backoffFactor,
			HTTPTimeout:               httpTimeout,
			RedisTimeout:              redisTimeout,
		},
		Scheduler: SchedulerSettings{
			CollectorURL:      getEnvOrDefault("COLLECTOR_URL", "http://collector:8001"),
			AnalyzerURL:       getEnvOrDefault("ANALYZER_URL", "http://analyzer:8002"),
			ComposerURL:       getEnvOrDefault("COMPOSER_URL", "http://composer:8003"),
			NotionWorkerURL:   getEnvOrDefault("NOTION_WORKER_URL", "http://notion-worker:8004"),
			HTTPTimeout:       schedTimeout,
			StatusTimeout:     statusTimeout,
			StatusMaxAttempts: statusAttempts,
			ScheduleTime:      getEnvOrDefault("SCHEDULE_TIME", "08:30"),
		},
		Logging: LoggingSettings{
			Level:    getEnvOrDefault("LOG_LEVEL", "INFO"),
			JSONLogs: getEnvBool("JSON_LOGS", false),
		},
	}, nil
}

// ListenAddr returns the HTTP bind address for a service: HOST and PORT
// environment variables over the given per-service default port.
func ListenAddr(defaultPort int) (string, error) {
	port, err := getEnvInt("PORT", defaultPort)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", getEnvOrDefault("HOST", "0.0.0.0"), port), nil
}

// parseFeeds parses the RSS_FEEDS value: comma-separated entries, each
// either "url|source" or a bare URL whose hostname becomes the source.
// Empty input yields the default feed list.
func parseFeeds(raw string) ([]Feed, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultFeeds(), nil
	}
	var feeds []Feed
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		feedURL, source, found := strings.Cut(item, "|")
		feedURL = strings.TrimSpace(feedURL)
		source = strings.TrimSpace(source)
		if !found || source == "" {
			u, err := url.Parse(feedURL)
			if err != nil || u.Hostname() == "" {
				return nil, fmt.Errorf("invalid RSS_FEEDS entry %q", item)
			}
			source = u.Hostname()
		}
		feeds = append(feeds, Feed{URL: feedURL, Source: source})
	}
	if len(feeds) == 0 {
		return DefaultFeeds(), nil
	}
	return feeds, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

// getEnvSeconds reads a float number of seconds (the original deployment
// convention, e.g. HTTP_TIMEOUT=30.0) into a Duration.
func getEnvSeconds(key string, defaultVal float64) (time.Duration, error) {
	f, err := getEnvFloat(key, defaultVal)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

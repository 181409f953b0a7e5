package engines

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/shaiso/promptflow/internal/domain"
)

// EngineCURL — имя движка, выполняющего команду curl.
const EngineCURL = "curl"

// CURLEngine разбирает content как командную строку curl и выполняет запрос.
//
// Поддерживаемые флаги: -X/--request, -H/--header, -d/--data/--data-raw/
// --data-binary/--data-urlencode, -u/--user, -L/--location, -k/--insecure,
// -G/--get, -A/--user-agent, -b/--cookie, -m/--max-time, --url.
// Флаги вывода (-s, -S, -v, -i, --compressed) игнорируются.
// Загрузка файлов (-F name=@file, -d @file) не поддерживается.
//
// Результат:
//
//	{"status": 200, "headers": {...}, "data": {...}}
//
// Параметры шага: timeout (мс), retries, retry_delay_ms.
type CURLEngine struct {
	// Transport — базовый транспорт (nil — http.DefaultTransport).
	Transport http.RoundTripper
}

// Execute выполняет команду.
func (e *CURLEngine) Execute(ctx context.Context, content, _ string, params domain.Value) (domain.Value, error) {
	cmd, err := ParseCurlCommand(content)
	if err != nil {
		return domain.Value{}, invalidParams(EngineCURL, "%v", err)
	}

	timeout := cmd.Timeout
	if ms, ok := params.IntField("timeout"); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := buildHTTPClient(e.Transport, timeout, cmd.FollowRedirects, !cmd.Insecure)
	policy := retryPolicyFromParams(params)

	var result *httpResult
	err = policy.Do(ctx, isRetryableHTTPError, func(ctx context.Context) error {
		req, err := cmd.Request(ctx)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		result, err = doHTTP(ctx, client, req)
		return err
	})
	if err != nil {
		return domain.Value{}, err
	}

	headers := make(map[string]domain.Value, len(result.Headers))
	for k, v := range result.Headers {
		headers[k] = domain.String(v)
	}

	return domain.Object(map[string]domain.Value{
		"status":  domain.Int(int64(result.StatusCode)),
		"headers": domain.Object(headers),
		"data":    result.Body,
	}), nil
}

// CurlCommand — разобранная команда curl.
type CurlCommand struct {
	Method          string
	URL             string
	Headers         http.Header
	Data            []string
	User            string
	FollowRedirects bool
	Insecure        bool
	Get             bool
	Timeout         time.Duration
}

// ParseCurlCommand разбирает командную строку curl.
// Кавычки и экранирование обрабатываются по правилам POSIX shell.
func ParseCurlCommand(line string) (*CurlCommand, error) {
	// Продолжения строк из скопированных команд
	line = strings.ReplaceAll(line, "\\\r\n", " ")
	line = strings.ReplaceAll(line, "\\\n", " ")

	args, err := shellwords.Parse(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("split command: %w", err)
	}
	if len(args) > 0 && args[0] == "curl" {
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty curl command")
	}

	cmd := &CurlCommand{Headers: make(http.Header)}

	next := func(i *int, flag string) (string, error) {
		if *i+1 >= len(args) {
			return "", fmt.Errorf("flag %s requires a value", flag)
		}
		*i++
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// --flag=value
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			args = append(args[:i+1], append([]string{parts[1]}, args[i+1:]...)...)
			args[i] = parts[0]
			arg = parts[0]
		}

		switch arg {
		case "-X", "--request":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			cmd.Method = strings.ToUpper(v)

		case "-H", "--header":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			name, value, ok := strings.Cut(v, ":")
			if !ok {
				return nil, fmt.Errorf("invalid header %q", v)
			}
			cmd.Headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))

		case "-d", "--data", "--data-raw", "--data-binary", "--data-ascii":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			if strings.HasPrefix(v, "@") && arg != "--data-raw" {
				return nil, fmt.Errorf("reading data from files is not supported")
			}
			cmd.Data = append(cmd.Data, v)

		case "--data-urlencode":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			cmd.Data = append(cmd.Data, urlencodeData(v))

		case "-u", "--user":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			cmd.User = v

		case "-A", "--user-agent":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			cmd.Headers.Set("User-Agent", v)

		case "-b", "--cookie":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			cmd.Headers.Add("Cookie", v)

		case "-m", "--max-time":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			sec, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid --max-time %q", v)
			}
			cmd.Timeout = time.Duration(sec * float64(time.Second))

		case "--url":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			cmd.URL = v

		case "-L", "--location":
			cmd.FollowRedirects = true
		case "-k", "--insecure":
			cmd.Insecure = true
		case "-G", "--get":
			cmd.Get = true
		case "-s", "--silent", "-S", "--show-error", "-v", "--verbose", "-i", "--include", "--compressed", "-f", "--fail":
			// не влияют на запрос

		case "-F", "--form":
			return nil, fmt.Errorf("multipart forms are not supported")

		default:
			if strings.HasPrefix(arg, "-") {
				return nil, fmt.Errorf("unsupported flag %s", arg)
			}
			if cmd.URL == "" {
				cmd.URL = arg
			}
		}
	}

	if cmd.URL == "" {
		return nil, fmt.Errorf("url not found in curl command")
	}
	if !strings.HasPrefix(cmd.URL, "http://") && !strings.HasPrefix(cmd.URL, "https://") {
		cmd.URL = "http://" + cmd.URL
	}

	if cmd.Method == "" {
		switch {
		case cmd.Get:
			cmd.Method = http.MethodGet
		case len(cmd.Data) > 0:
			cmd.Method = http.MethodPost
		default:
			cmd.Method = http.MethodGet
		}
	}

	return cmd, nil
}

// urlencodeData кодирует значение --data-urlencode: "name=value" кодирует
// только value, "value" — целиком.
func urlencodeData(v string) string {
	if name, value, ok := strings.Cut(v, "="); ok {
		if name == "" {
			return url.QueryEscape(value)
		}
		return name + "=" + url.QueryEscape(value)
	}
	return url.QueryEscape(v)
}

// Request строит *http.Request по команде.
func (c *CurlCommand) Request(ctx context.Context) (*http.Request, error) {
	target := c.URL
	var body *strings.Reader

	data := strings.Join(c.Data, "&")
	if c.Get && data != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + data
		data = ""
	}
	if data != "" {
		body = strings.NewReader(data)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, c.Method, target, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, c.Method, target, nil)
	}
	if err != nil {
		return nil, err
	}

	for name, values := range c.Headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.User != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.User)))
	}

	return req, nil
}

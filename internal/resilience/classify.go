package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"regexp"
	"strings"
	"syscall"
)

// kindPattern — шаблон сообщения для класса ошибки.
type kindPattern struct {
	kind ErrorKind
	re   *regexp.Regexp
}

// messagePatterns проверяются по порядку, побеждает первое совпадение.
var messagePatterns = []kindPattern{
	{KindRateLimit, regexp.MustCompile(`\b429\b|rate[ _-]?limit|too many requests|requests per (minute|second)|throttl`)},
	{KindTimeout, regexp.MustCompile(`\b(408|504)\b|time[d]? ?out|deadline exceeded|etimedout`)},
	{KindServerError, regexp.MustCompile(`\b50[0-3]\b|internal server error|bad gateway|service unavailable|overloaded|server error|upstream error`)},
	{KindNetworkError, regexp.MustCompile(`econnrefused|econnreset|enotfound|connection (refused|reset|closed)|no such host|network|socket hang up|broken pipe|\beof\b`)},
	{KindClientError, regexp.MustCompile(`\b4(00|01|02|03|04|22)\b|bad request|unauthori[sz]ed|forbidden|invalid[ _]api[ _]key|authentication|permission denied|not found|insufficient[ _]quota|billing|budget`)},
	{KindParseError, regexp.MustCompile(`pars(e|ing)|unmarshal|invalid json|json|unexpected token|invalid character|malformed|no predictions`)},
}

// terminalPattern — бюджет исчерпан или явная ошибка аутентификации.
var terminalPattern = regexp.MustCompile(`insufficient[ _]quota|billing|budget (exceeded|exhausted)|invalid[ _]api[ _]key|unauthori[sz]ed|authentication failed`)

// Classify сопоставляет ошибку одному классу ErrorKind.
//
// Порядок проверки:
//  1. Таймауты (context.DeadlineExceeded, net.Error.Timeout)
//  2. StatusError по коду
//  3. Ошибки разбора JSON и ErrParse
//  4. Сетевые ошибки (net.OpError, DNS, ECONNREFUSED/ECONNRESET)
//  5. Шаблоны текста сообщения
//
// Функция тотальная: nil и всё нераспознанное дают KindUnknown.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ClassifyStatus(statusErr.Code)
	}

	if errors.Is(err, ErrParse) {
		return KindParseError
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindParseError
	}

	if errors.Is(err, ErrBudgetExhausted) || errors.Is(err, ErrAuth) {
		return KindClientError
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindNetworkError
	}

	return ClassifyMessage(err.Error())
}

// ClassifyStatus сопоставляет HTTP-подобный статус классу ошибки.
func ClassifyStatus(code int) ErrorKind {
	switch {
	case code == 429:
		return KindRateLimit
	case code == 408 || code == 504:
		return KindTimeout
	case code >= 500 && code <= 599:
		return KindServerError
	case code >= 400 && code <= 499:
		return KindClientError
	default:
		return KindUnknown
	}
}

// ClassifyMessage классифицирует текст ошибки по шаблонам.
func ClassifyMessage(msg string) ErrorKind {
	msg = strings.ToLower(msg)
	for _, p := range messagePatterns {
		if p.re.MatchString(msg) {
			return p.kind
		}
	}
	return KindUnknown
}

// IsTerminal проверяет, что ошибка не имеет смысла ретраить:
// исчерпан бюджет или провайдер явно отверг учётные данные.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBudgetExhausted) || errors.Is(err, ErrAuth) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case 401, 402, 403:
			return true
		}
	}

	return terminalPattern.MatchString(strings.ToLower(err.Error()))
}

// IsRetryable проверяет, стоит ли оркестратору повторить вызов провайдера.
// Повторяются только rate limit и ошибки разбора, не терминальные.
func IsRetryable(err error) bool {
	if err == nil || IsTerminal(err) {
		return false
	}
	switch Classify(err) {
	case KindRateLimit, KindParseError:
		return true
	default:
		return false
	}
}

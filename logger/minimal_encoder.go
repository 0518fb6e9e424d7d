package logger

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Color palette (warm, muted, easy on eyes)
const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

type palette struct {
	fg       string
	aqua     string
	orange   string
	yellow   string
	green    string
	blue     string
	purple   string
	red      string
	redBg    string
	yellowBg string
}

var colors = palette{
	fg:       "\x1b[38;5;223m", // Soft cream
	aqua:     "\x1b[38;5;108m", // Muted cyan-green
	orange:   "\x1b[38;5;208m", // Warm orange
	yellow:   "\x1b[38;5;214m", // Soft yellow
	green:    "\x1b[38;5;142m", // Muted green
	blue:     "\x1b[38;5;109m", // Soft blue
	purple:   "\x1b[38;5;175m", // Muted purple
	red:      "\x1b[38;5;167m", // Warm red
	redBg:    "\x1b[48;5;88m",  // Dark red background
	yellowBg: "\x1b[48;5;58m",  // Dark yellow background
}

func colorComponent(name string) string {
	// Hash for consistent color per component
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	if hash%2 == 0 {
		return colors.orange
	}
	return colors.yellow
}

func colorMessage(msg string) string {
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "extract") || strings.Contains(lower, "classified") ||
		strings.Contains(lower, "finalized") || strings.Contains(lower, "completed") {
		return colors.green
	}
	if strings.Contains(lower, "vision") || strings.Contains(lower, "cost") ||
		strings.Contains(lower, "budget") {
		return colors.purple
	}
	if strings.Contains(lower, "starting") || strings.Contains(lower, "started") ||
		strings.Contains(lower, "config") || strings.Contains(lower, "lock") {
		return colors.orange
	}
	return colors.fg
}

// bracketPattern matches contextual markers like [doc:berlin-1921] or [ocr].
var bracketPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// colorizeMessage parses a log message and applies context-aware colorization
// to its components: document keys, stage markers, run IDs.
func colorizeMessage(msg string) string {
	result := strings.Builder{}
	lastIndex := 0

	matches := bracketPattern.FindAllStringSubmatchIndex(msg, -1)
	for _, match := range matches {
		textBefore := msg[lastIndex:match[0]]
		if textBefore != "" {
			result.WriteString(colorMessage(msg))
			result.WriteString(textBefore)
			result.WriteString(colorReset)
		}

		content := msg[match[2]:match[3]]

		var color string
		switch {
		case strings.HasPrefix(content, "doc:"):
			color = colors.blue
		case strings.HasPrefix(content, "run:"):
			color = colors.aqua
		default:
			// Stage markers like [embedded], [ocr], [vision]
			color = colors.orange
		}

		result.WriteString(color)
		result.WriteString(msg[match[0]:match[1]])
		result.WriteString(colorReset)

		lastIndex = match[1]
	}

	remaining := msg[lastIndex:]
	if remaining != "" {
		result.WriteString(colorMessage(msg))
		result.WriteString(remaining)
		result.WriteString(colorReset)
	}

	return result.String()
}

// minimalEncoder implements a calm, compact console encoder
// Format: "13:04:35  p.pool  Document finalized  berlin-1921 (12 pages, 840ms)"
type minimalEncoder struct {
	zapcore.Encoder // Embed a base encoder for field serialization
	buf             *buffer.Buffer
}

func newMinimalEncoder() *minimalEncoder {
	// Base JSON encoder handles field serialization (internal use only)
	baseEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	return &minimalEncoder{
		Encoder: baseEncoder,
		buf:     buffer.NewPool().Get(),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{
		Encoder: enc.Encoder.Clone(),
		buf:     buffer.NewPool().Get(),
	}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := buffer.NewPool().Get()

	// Time
	final.AppendString(colors.aqua)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	// Level: only show for WARN/ERROR with bold + background
	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(ent.Level))
	}

	// Component name (abbreviated) for visual grouping
	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(colorComponent(ent.LoggerName))
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	// Message: context-aware colorization of brackets and content
	final.AppendString("  ")
	final.AppendString(colorizeMessage(ent.Message))

	// Fields: extract and color values
	if len(fields) > 0 {
		if extracted := extractFieldValues(fields); extracted != "" {
			final.AppendString("  ")
			final.AppendString(extracted)
		}
	}

	final.AppendString("\n")
	return final, nil
}

// levelColorString returns bold + colored + background for WARN/ERROR
func levelColorString(level zapcore.Level) string {
	switch level {
	case zapcore.WarnLevel:
		return colorBold + colors.yellowBg + colors.yellow + "WARN" + colorReset
	case zapcore.ErrorLevel:
		return colorBold + colors.redBg + colors.red + "ERROR" + colorReset
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return colorBold + colors.redBg + colors.red + level.CapitalString() + colorReset
	default:
		return ""
	}
}

// abbreviateName shortens component names: pipeline -> p, pipeline.pool -> p.pool
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// getFieldValue extracts the value from a zap field, handling different field types
func getFieldValue(field zapcore.Field) string {
	switch field.Type {
	case zapcore.StringType:
		return field.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", field.Integer)
	case zapcore.BoolType:
		if field.Integer == 1 {
			return "true"
		}
		return "false"
	case zapcore.Float64Type:
		return strconv.FormatFloat(math.Float64frombits(uint64(field.Integer)), 'g', -1, 64)
	case zapcore.Float32Type:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(field.Integer))), 'g', -1, 32)
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok {
			return err.Error()
		}
	case zapcore.DurationType:
		return fmt.Sprintf("%v", time.Duration(field.Integer))
	}

	if field.Interface != nil {
		return fmt.Sprintf("%v", field.Interface)
	}

	return field.String
}

// extractFieldValues pulls the values from structured fields. Recognized
// pipeline fields get compact formatting; everything else is preserved as
// key=value so no debugging information is ever silently dropped.
// Input: {"key": "berlin-1921", "pages": 12, "duration_ms": 840}
// Output: "berlin-1921 (12 pages, 840ms)" (with colored keys and numbers)
func extractFieldValues(fields []zapcore.Field) string {
	var values []string
	var pageCount, durationMS string

	for _, field := range fields {
		if field.Type == zapcore.SkipType {
			continue
		}
		switch field.Key {
		case FieldDocKey, FieldRunID:
			val := getFieldValue(field)
			if val != "" {
				values = append(values, colors.blue+val+colorReset)
			}
		case FieldPages:
			pageCount = getFieldValue(field)
		case FieldDurationMS:
			durationMS = getFieldValue(field)
		case FieldQuality, FieldState:
			val := getFieldValue(field)
			if val != "" {
				values = append(values, colors.green+val+colorReset)
			}
		case FieldCostUSD:
			val := getFieldValue(field)
			if val != "" {
				values = append(values, colors.purple+"$"+val+colorReset)
			}
		default:
			values = append(values, colors.fg+field.Key+"="+getFieldValue(field)+colorReset)
		}
	}

	// Compact tail for the common pages+duration pair
	switch {
	case pageCount != "" && durationMS != "":
		values = append(values, colors.fg+"("+colors.purple+pageCount+colorReset+colors.fg+" pages, "+colors.purple+durationMS+colorReset+colors.fg+"ms)"+colorReset)
	case pageCount != "":
		values = append(values, colors.fg+"("+colors.purple+pageCount+colorReset+colors.fg+" pages)"+colorReset)
	case durationMS != "":
		values = append(values, colors.purple+durationMS+colorReset+colors.fg+"ms"+colorReset)
	}

	if len(values) == 0 {
		return ""
	}

	return strings.Join(values, " ")
}

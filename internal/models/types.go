package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// JsonNullString 包裝 sql.NullString，讓「缺值」在 JSON 序列化時
// 往返為真正的 null，而不是看起來像關鍵字的字串。
type JsonNullString struct {
	sql.NullString
}

// NullableString 以字串建立 JsonNullString；退化的佔位值一律視為缺值
func NullableString(s string) JsonNullString {
	if IsDegenerateTranscript(s) {
		return JsonNullString{}
	}
	return JsonNullString{NullString: sql.NullString{String: s, Valid: true}}
}

// MarshalJSON 實現 json.Marshaler 介面
func (jns JsonNullString) MarshalJSON() ([]byte, error) {
	if !jns.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(jns.String)
}

// UnmarshalJSON 實現 json.Unmarshaler 介面
func (jns *JsonNullString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		jns.String, jns.Valid = "", false
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		jns.String, jns.Valid = "", false
		return fmt.Errorf("JsonNullString: 期望 JSON 字串或 null，但得到 '%s': %w", string(data), err)
	}
	jns.String, jns.Valid = s, true
	return nil
}

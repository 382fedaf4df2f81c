package model

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

// EventID 는 store 문서 id 로 쓰이는 결정적 식별자를 만든다.
//
//	hex(SHA-1(decimal(timestamp) + primary_ip))
//
// 같은 초에 같은 IP 에서 온 두 요청은 같은 id 를 갖고,
// 뒤에 온 문서가 store 에서 앞의 문서를 덮어쓴다. 재색인이 idempotent 하도록 의도된 동작이다.
func EventID(ev *LogEvent) string {
	h := sha1.New()
	h.Write([]byte(strconv.FormatUint(uint64(ev.Timestamp), 10)))
	h.Write([]byte(ev.PrimaryIP))
	return hex.EncodeToString(h.Sum(nil))
}

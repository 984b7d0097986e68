package terminology_test

import (
	"testing"

	"github.com/jihoonkim/legisub/internal/terminology"
	"github.com/stretchr/testify/assert"
)

func TestCorrectAppliesEntriesInOrder(t *testing.T) {
	d := terminology.New([]terminology.Entry{
		{Wrong: "에상", Correct: "예산", Category: terminology.CategoryTerm},
		{Wrong: "국회위원", Correct: "국회의원", Category: terminology.CategoryTerm},
	})

	got := d.Correct("이번 에상안은 국회위원 전원이 찬성했습니다.")
	assert.Equal(t, "이번 예산안은 국회의원 전원이 찬성했습니다.", got)
}

func TestCorrectIsIdempotent(t *testing.T) {
	d := terminology.New([]terminology.Entry{
		{Wrong: "에상", Correct: "예산"},
	})
	once := d.Correct("예산안 심사")
	twice := d.Correct(once)
	assert.Equal(t, once, twice)
}

func TestCorrectEmptyText(t *testing.T) {
	d := terminology.New(nil)
	assert.Equal(t, "", d.Correct(""))
}

func TestDetectPIIRRNTakesPriorityOverPhone(t *testing.T) {
	matches := terminology.DetectPII("주민번호는 900101-1234567 입니다")
	assert.Len(t, matches, 1)
	assert.Equal(t, "rrn", matches[0].Type)
}

func TestMaskPIIPhoneAndEmail(t *testing.T) {
	got := terminology.MaskPII("연락처는 010-1234-5678, 이메일은 hong@example.com")
	assert.Equal(t, "연락처는 ***-****-5678, 이메일은 h**g@example.com", got)
}

func TestMaskPIINoMatches(t *testing.T) {
	text := "오늘 회의를 시작하겠습니다."
	assert.Equal(t, text, terminology.MaskPII(text))
}

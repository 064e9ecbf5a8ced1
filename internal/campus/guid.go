// Package campus はキャンパスグループ（学期・サークル・講義など）の作成と参加を提供する。
package campus

import (
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// GeneralGroupName は全員が参加する雑談グループの名前。
const GeneralGroupName = "General Discussion"

// GroupGUID は大学・種別・名前からグループのGUIDを生成する。
// 大学名と名前は小文字にし、空白をアンダースコアに置き換える。
//
//	GroupGUID("IIT Bombay", model.GroupTypeClub, "Drama Club") // "iit_bombay_club_drama_club"
func GroupGUID(college string, groupType model.GroupType, name string) string {
	return fmt.Sprintf("%s_%s_%s", slug(college), groupType, slug(name))
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// CollegeFromEmail は大学のメールアドレスから大学の識別名を取り出す。
// 登録可能ドメインの先頭ラベルを使うため、サブドメインは無視される。
//
//	CollegeFromEmail("jane@cs.campus.edu") // "campus"
func CollegeFromEmail(email string) (string, error) {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return "", fmt.Errorf("email has no domain: %q", email)
	}
	domain := strings.TrimSuffix(strings.ToLower(email[at+1:]), ".")

	registrable, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return "", fmt.Errorf("cannot derive college from %q: %w", domain, err)
	}
	label, _, _ := strings.Cut(registrable, ".")
	return label, nil
}

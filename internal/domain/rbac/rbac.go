// Пакет rbac — логика определения роли вызывающего.
// Роли поступают из IdP (группы или realm-роли в JWT).
// Любой аутентифицированный пользователь — как минимум submitter;
// членство в административной группе повышает роль до admin.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleSubmitter = "submitter"
	RoleAdmin     = "admin"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleSubmitter: 1,
	RoleAdmin:     2,
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	wa := roleWeight[a]
	wb := roleWeight[b]
	if wa >= wb {
		return a
	}
	return b
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст — возвращает пустую строку.
func HighestRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	highest := roles[0]
	for _, r := range roles[1:] {
		highest = maxRole(highest, r)
	}
	return highest
}

// MapGroupsToRole определяет роль пользователя на основе его групп IdP.
// Членство в любой из adminGroups даёт роль admin, иначе — submitter.
func MapGroupsToRole(groups, adminGroups []string) string {
	adminSet := toSet(adminGroups)
	for _, g := range groups {
		if adminSet[g] {
			return RoleAdmin
		}
	}
	return RoleSubmitter
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}

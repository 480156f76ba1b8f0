package domain

// Биты прав доступа. Маска пользователя - сумма битов выданных уровней.
//
// normal  => только свои посты
// visor   => может добавлять рубрики
// super   => может править и удалять рубрики
// admin   => может менять уровень доступа других пользователей
const (
	PermAddPosts       = 1
	PermDeletePosts    = 2
	PermAddCategories  = 4
	PermEditCategories = 8
	PermEditUserAccess = 16
)

// permTiers - фиксированный порядок уровней. Делегирование выдает
// все уровни вплоть до запрошенного, а не произвольный набор битов.
var permTiers = []int{
	PermAddPosts,
	PermDeletePosts,
	PermAddCategories,
	PermEditCategories,
	PermEditUserAccess,
}

// CanDo проверяет, есть ли у пользователя конкретный бит доступа.
func (u *User) CanDo(perm int) bool {
	return u.Perm&perm != 0
}

// Type возвращает отображаемую роль пользователя.
// Вычисляется при каждом чтении, сверху вниз, и нигде не хранится.
func (u *User) Type() string {
	switch {
	case u.CanDo(PermEditUserAccess):
		return "admin"
	case u.CanDo(PermEditCategories):
		return "super"
	case u.CanDo(PermAddCategories):
		return "visor"
	default:
		return "normal"
	}
}

// GrantUpTo возвращает маску из всех уровней, не превышающих запрошенный.
//
// Например, requested = 2 (PermDeletePosts) дает 1+2 = 3:
// высокие биты отбрасываются, даже если они были выставлены в requested.
func GrantUpTo(requested int) int {
	sum := 0
	for _, tier := range permTiers {
		if tier <= requested {
			sum += tier
		}
	}
	return sum
}

// CanDelegate сообщает, может ли пользователь менять чужой уровень доступа.
func (u *User) CanDelegate() bool {
	return u.CanDo(PermEditUserAccess)
}

package school

// Monthly subscription pricing, in euro cents. The first student and the
// first teacher are covered by the base price.
const (
	BasePrice              = 1000
	AdditionalStudentPrice = 500
	AdditionalTeacherPrice = 1000
)

// Price maps member counts to the monthly billing amount in cents.
func Price(studentCount, teacherCount int) int64 {
	total := int64(BasePrice)
	if studentCount > 0 {
		total += int64(studentCount-1) * AdditionalStudentPrice
	}
	if teacherCount > 0 {
		total += int64(teacherCount-1) * AdditionalTeacherPrice
	}
	return total
}

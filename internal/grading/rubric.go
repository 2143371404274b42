package grading

// MinStep and MaxStep bound the EDP step numbers that have a rubric.
const (
	MinStep = 1
	MaxStep = 6
)

var rubrics = map[int][CriteriaPerStep]string{
	1: {
		"ความชัดเจนของปัญหา (Clarity) - ปัญหาคืออะไร เกิดกับใคร",
		"ที่มาและความสำคัญ (Background) - ทำไมต้องแก้ปัญหานี้",
		"กลุ่มเป้าหมาย (Target User) - ระบุผู้ใช้งานชัดเจน",
		"ความเป็นไปได้ (Feasibility) - แก้ได้จริงหรือไม่",
	},
	2: {
		"ความน่าเชื่อถือ (Reliability) - ข้อมูลถูกต้อง อ้างอิงได้",
		"ความหลากหลาย (Variety) - มาจากหลายแหล่งข้อมูล",
		"ความเกี่ยวข้อง (Relevance) - ตรงกับหัวข้อปัญหา",
		"การสรุปใจความ (Synthesis) - เรียบเรียงเป็นภาษาตนเอง",
	},
	3: {
		"ความคิดสร้างสรรค์ (Creativity) - วิธีการแปลกใหม่ น่าสนใจ",
		"การเปรียบเทียบ (Comparison) - มีหลายทางเลือก",
		"เหตุผลการเลือก (Justification) - ทำไมเลือกวิธีนี้",
		"ความละเอียดแบบร่าง (Detail) - อธิบายลักษณะชิ้นงานชัดเจน",
	},
	4: {
		"ลำดับขั้นตอน (Process) - เป็นขั้นเป็นตอน เข้าใจง่าย",
		"วัสดุอุปกรณ์ (Materials) - ระบุของที่ต้องใช้ครบถ้วน",
		"ความปลอดภัย (Safety) - คำนึงถึงความปลอดภัย",
		"ความเป็นไปได้จริง (Practicality) - ทำได้จริงในเวลาที่มี",
	},
	5: {
		"วิธีการทดสอบ (Testing Method) - วัดผลได้เป็นรูปธรรม",
		"การบันทึกผล (Data Collection) - มีตัวเลข/ตารางชัดเจน",
		"การวิเคราะห์ (Analysis) - อธิบายผลลัพธ์ว่าดี/ไม่ดี",
		"ความซื่อสัตย์ (Integrity) - รายงานตามความเป็นจริง",
	},
	6: {
		"การสรุปผล (Conclusion) - ตอบโจทย์ปัญหาตั้งต้นไหม",
		"จุดเด่น/ด้อย (Pros/Cons) - วิเคราะห์งานตัวเองได้",
		"การพัฒนาต่อ (Future Work) - เสนอไอเดียต่อยอด",
		"การสื่อสาร (Communication) - ภาษาเข้าใจง่าย น่าสนใจ",
	},
}

var placeholderCriteria = [CriteriaPerStep]string{"เกณฑ์ที่ 1", "เกณฑ์ที่ 2", "เกณฑ์ที่ 3", "เกณฑ์ที่ 4"}

// Criteria returns the rubric descriptors for step, or generic placeholders for unknown steps.
func Criteria(step int) [CriteriaPerStep]string {
	if criteria, ok := rubrics[step]; ok {
		return criteria
	}
	return placeholderCriteria
}

// ValidStep reports whether step has a rubric.
func ValidStep(step int) bool {
	return step >= MinStep && step <= MaxStep
}
